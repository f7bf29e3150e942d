package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// PrintVariable writes a context variable to an output stream.
type PrintVariable struct {
	VarName string `mapstructure:"name"`

	out io.Writer
}

// NewPrintVariable returns a factory whose nodes print to out.
func NewPrintVariable(out io.Writer) pipeline.NodeFactory {
	return func(params map[string]any) (pipeline.Node, error) {
		n := &PrintVariable{out: out}
		if err := decodeParams(pipeline.NodePrintVariable, params, n); err != nil {
			return nil, err
		}
		if err := require(pipeline.NodePrintVariable, "name", n.VarName); err != nil {
			return nil, err
		}
		return n, nil
	}
}

func (n *PrintVariable) Name() string { return pipeline.NodePrintVariable }

func (n *PrintVariable) Run(_ context.Context, pctx *pipeline.PipelineContext) error {
	name := pctx.Resolve(n.VarName)
	value, ok := pctx.Get(name)
	if !ok {
		return pipeline.Invalid(pipeline.NodePrintVariable, "name", "variable %q does not exist", name)
	}
	if _, err := fmt.Fprintf(n.out, "variable name: %s\ndata: %v\n", name, value); err != nil {
		return fmt.Errorf("PrintVariable: write: %w", err)
	}
	return nil
}
