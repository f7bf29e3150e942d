package pipeline

import "context"

// Node is one constructed unit of pipeline work.
// Implementations live in the handlers sub-package; the interface is defined
// here so that Engine can use it without creating an import cycle.
type Node interface {
	// Name returns the registered node name.
	Name() string
	// Run executes the node and may mutate pctx.
	// Return a StopSignal error to end the pipeline early without failure.
	Run(ctx context.Context, pctx *PipelineContext) error
}

// NodeFactory builds a Node from its parameter bag. Factories validate only
// what they can without a context; everything else is checked in Run.
type NodeFactory func(params map[string]any) (Node, error)

// NodeRegistry resolves node names to constructed nodes.
type NodeRegistry interface {
	New(name string, params map[string]any) (Node, error)
	IsRegistered(name string) bool
}

// StopSignal is returned by the End node to finish a run before the last step.
type StopSignal struct{}

func (StopSignal) Error() string { return "pipeline stop" }
