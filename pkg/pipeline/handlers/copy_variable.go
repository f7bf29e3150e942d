package handlers

import (
	"context"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// CopyVariable copies context[input] to context[output].
type CopyVariable struct {
	Input  string `mapstructure:"input"`
	Output string `mapstructure:"output"`
	Mode   string `mapstructure:"mode"`
}

// NewCopyVariable is the pipeline.NodeFactory for CopyVariable.
func NewCopyVariable(params map[string]any) (pipeline.Node, error) {
	n := &CopyVariable{}
	if err := decodeParams(pipeline.NodeCopyVariable, params, n); err != nil {
		return nil, err
	}
	if err := require(pipeline.NodeCopyVariable, "input", n.Input); err != nil {
		return nil, err
	}
	if err := require(pipeline.NodeCopyVariable, "output", n.Output); err != nil {
		return nil, err
	}
	mode, err := checkMode(pipeline.NodeCopyVariable, n.Mode)
	if err != nil {
		return nil, err
	}
	n.Mode = mode
	return n, nil
}

func (n *CopyVariable) Name() string { return pipeline.NodeCopyVariable }

func (n *CopyVariable) Run(_ context.Context, pctx *pipeline.PipelineContext) error {
	input := pctx.Resolve(n.Input)
	value, ok := pctx.Get(input)
	if !ok {
		return pipeline.Invalid(pipeline.NodeCopyVariable, "input", "variable %q does not exist", input)
	}
	return store(pctx, pipeline.NodeCopyVariable, pctx.Resolve(n.Output), n.Mode, value)
}
