package handlers

import (
	"io"
	"os"
	"sort"
	"sync"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// Registry maps node names to factories.
// It implements the pipeline.NodeRegistry interface.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]pipeline.NodeFactory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]pipeline.NodeFactory)}
}

// Register associates a factory with a node name, replacing any earlier one.
func (r *Registry) Register(name string, f pipeline.NodeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// IsRegistered reports whether name has a factory.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// New constructs the node registered under name.
// An unregistered name yields a *pipeline.UnknownNodeError.
func (r *Registry) New(name string, params map[string]any) (pipeline.Node, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &pipeline.UnknownNodeError{Name: name}
	}
	if params == nil {
		params = map[string]any{}
	}
	return f(params)
}

// Names returns the registered node names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Options configures the built-in nodes.
type Options struct {
	// Out receives PrintVariable output (os.Stdout when nil).
	Out io.Writer
	// Seed is stored under "seed" by the Start node when non-empty.
	Seed string
	// Chat configures ChatCall / GPTChat.
	Chat ChatCallConfig
}

// NewDefaultRegistry returns a registry with every built-in node.
func NewDefaultRegistry(opts Options) *Registry {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	r := NewRegistry()
	r.Register(pipeline.NodeStart, NewStart(opts.Seed))
	r.Register(pipeline.NodeEnd, NewEnd)
	r.Register(pipeline.NodeSetVariable, NewSetVariable)
	r.Register(pipeline.NodeCopyVariable, NewCopyVariable)
	r.Register(pipeline.NodePrintVariable, NewPrintVariable(out))
	r.Register(pipeline.NodeReadFile, NewReadFile)
	r.Register(pipeline.NodeSaveFile, NewSaveFile)
	r.Register(pipeline.NodeLoadEnv, NewLoadEnv)
	chat := NewChatCall(opts.Chat)
	r.Register(pipeline.NodeChatCall, chat)
	r.Register(pipeline.NodeGPTChat, chat)
	return r
}

var _ pipeline.NodeRegistry = (*Registry)(nil)
