package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// NodeHook observes every executed node. err is nil on success.
type NodeHook func(node string, elapsed time.Duration, err error)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger routes engine logging to l instead of slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithNodeHook registers h to be called after every node run.
func WithNodeHook(h NodeHook) EngineOption {
	return func(e *Engine) { e.hook = h }
}

// Engine executes a Pipeline's steps in order against one shared context.
type Engine struct {
	pipeline       *Pipeline
	registry       NodeRegistry
	pctx           *PipelineContext
	checkpointPath string
	logger         *slog.Logger
	hook           NodeHook
}

// NewEngine creates an Engine. Node names are resolved lazily, one step at a
// time, so an unknown node only fails when execution reaches it.
func NewEngine(
	p *Pipeline,
	reg NodeRegistry,
	pctx *PipelineContext,
	checkpointPath string,
	opts ...EngineOption,
) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline must not be nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("node registry must not be nil")
	}
	if pctx == nil {
		return nil, fmt.Errorf("pipeline context must not be nil")
	}
	e := &Engine{
		pipeline:       p,
		registry:       reg,
		pctx:           pctx,
		checkpointPath: checkpointPath,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Context returns the context the engine mutates.
func (e *Engine) Context() *PipelineContext { return e.pctx }

// Execute runs the pipeline from step fromStep (0 for a fresh run, last
// checkpointed step + 1 for a resume). It stops at the first failing step;
// mutations made by earlier steps remain in the context.
func (e *Engine) Execute(ctx context.Context, fromStep int) error {
	log := e.logger
	if log == nil {
		log = slog.Default()
	}
	if fromStep < 0 || fromStep > len(e.pipeline.Steps) {
		return fmt.Errorf("start step %d out of range [0, %d]", fromStep, len(e.pipeline.Steps))
	}

	for i := fromStep; i < len(e.pipeline.Steps); i++ {
		step := e.pipeline.Steps[i]

		// Respect context cancellation between nodes.
		select {
		case <-ctx.Done():
			return fmt.Errorf("pipeline cancelled at step %d (%s): %w", i, step.Node, ctx.Err())
		default:
		}

		node, err := e.registry.New(step.Node, step.Params)
		if err != nil {
			e.observe(step.Node, 0, err)
			return fmt.Errorf("step %d (%s): %w", i, step.Node, err)
		}

		log.Info("executing node", "step", i, "node", step.Node)

		start := time.Now()
		runErr := node.Run(ctx, e.pctx)
		e.observe(step.Node, time.Since(start), runErr)

		if runErr != nil {
			var stop StopSignal
			if errors.As(runErr, &stop) {
				log.Info("pipeline complete", "step", i, "node", step.Node)
				if e.checkpointPath != "" {
					if cpErr := e.pctx.SaveCheckpoint(e.checkpointPath, i); cpErr != nil {
						return fmt.Errorf("step %d (%s): save checkpoint: %w", i, step.Node, cpErr)
					}
				}
				return nil
			}
			return fmt.Errorf("step %d (%s): %w", i, step.Node, runErr)
		}

		// Checkpoint after every successful step.
		if e.checkpointPath != "" {
			if cpErr := e.pctx.SaveCheckpoint(e.checkpointPath, i); cpErr != nil {
				return fmt.Errorf("step %d (%s): save checkpoint: %w", i, step.Node, cpErr)
			}
		}
	}

	log.Info("pipeline ended", "steps", len(e.pipeline.Steps))
	return nil
}

func (e *Engine) observe(node string, elapsed time.Duration, err error) {
	if e.hook != nil {
		e.hook(node, elapsed, err)
	}
}

// Run executes p from the first step against a fresh, empty context and
// returns that context, also on failure.
func Run(ctx context.Context, p *Pipeline, reg NodeRegistry, opts ...EngineOption) (*PipelineContext, error) {
	pctx := NewPipelineContext()
	eng, err := NewEngine(p, reg, pctx, "", opts...)
	if err != nil {
		return pctx, err
	}
	return pctx, eng.Execute(ctx, 0)
}
