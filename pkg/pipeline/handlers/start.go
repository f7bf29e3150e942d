package handlers

import (
	"context"
	"time"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// Start records the run's start time and, when given, the seed.
type Start struct {
	Seed string `mapstructure:"seed"`
}

// NewStart returns a factory for Start nodes. A non-empty seed (from the CLI)
// takes precedence over the node's own "seed" parameter.
func NewStart(seed string) pipeline.NodeFactory {
	return func(params map[string]any) (pipeline.Node, error) {
		n := &Start{}
		if err := decodeParams(pipeline.NodeStart, params, n); err != nil {
			return nil, err
		}
		if seed != "" {
			n.Seed = seed
		}
		return n, nil
	}
}

func (n *Start) Name() string { return pipeline.NodeStart }

func (n *Start) Run(_ context.Context, pctx *pipeline.PipelineContext) error {
	if n.Seed != "" {
		pctx.Set("seed", n.Seed)
	}
	pctx.Set("start_time", time.Now().UTC().Format(time.RFC3339))
	return nil
}
