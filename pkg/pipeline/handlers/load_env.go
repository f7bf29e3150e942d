package handlers

import (
	"context"
	"os"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// LoadEnv copies an OS environment variable into the context, typically an
// API key that a later ChatCall references as ${name}.
type LoadEnv struct {
	VarName  string `mapstructure:"name"`
	From     string `mapstructure:"from"`
	Default  string `mapstructure:"default"`
	Required bool   `mapstructure:"required"`
}

// NewLoadEnv is the pipeline.NodeFactory for LoadEnv.
func NewLoadEnv(params map[string]any) (pipeline.Node, error) {
	n := &LoadEnv{}
	if err := decodeParams(pipeline.NodeLoadEnv, params, n); err != nil {
		return nil, err
	}
	if err := require(pipeline.NodeLoadEnv, "name", n.VarName); err != nil {
		return nil, err
	}
	if err := require(pipeline.NodeLoadEnv, "from", n.From); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *LoadEnv) Name() string { return pipeline.NodeLoadEnv }

func (n *LoadEnv) Run(_ context.Context, pctx *pipeline.PipelineContext) error {
	value := os.Getenv(n.From)
	if value == "" {
		if n.Required {
			return pipeline.Invalid(pipeline.NodeLoadEnv, "from", "environment variable %q is not set", n.From)
		}
		value = n.Default
	}
	pctx.Set(pctx.Resolve(n.VarName), value)
	return nil
}
