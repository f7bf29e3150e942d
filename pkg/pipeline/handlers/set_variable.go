package handlers

import (
	"context"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// SetVariable stores a literal value in the context. String values have
// ${var} placeholders resolved first.
type SetVariable struct {
	VarName string `mapstructure:"name"`
	Value   any    `mapstructure:"value"`
	Mode    string `mapstructure:"mode"`
}

// NewSetVariable is the pipeline.NodeFactory for SetVariable.
func NewSetVariable(params map[string]any) (pipeline.Node, error) {
	n := &SetVariable{}
	if err := decodeParams(pipeline.NodeSetVariable, params, n); err != nil {
		return nil, err
	}
	if err := require(pipeline.NodeSetVariable, "name", n.VarName); err != nil {
		return nil, err
	}
	if n.Value == nil || n.Value == "" {
		return nil, pipeline.Invalid(pipeline.NodeSetVariable, "value", "is required")
	}
	mode, err := checkMode(pipeline.NodeSetVariable, n.Mode)
	if err != nil {
		return nil, err
	}
	n.Mode = mode
	return n, nil
}

func (n *SetVariable) Name() string { return pipeline.NodeSetVariable }

func (n *SetVariable) Run(_ context.Context, pctx *pipeline.PipelineContext) error {
	name := pctx.Resolve(n.VarName)
	value := n.Value
	if s, ok := value.(string); ok {
		value = pctx.Resolve(s)
	}
	return store(pctx, pipeline.NodeSetVariable, name, n.Mode, value)
}
