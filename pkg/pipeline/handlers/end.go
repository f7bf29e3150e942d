package handlers

import (
	"context"
	"time"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// End finishes the run early by returning a StopSignal.
type End struct{}

// NewEnd is the pipeline.NodeFactory for End. It takes no parameters.
func NewEnd(map[string]any) (pipeline.Node, error) { return End{}, nil }

func (End) Name() string { return pipeline.NodeEnd }

func (End) Run(_ context.Context, pctx *pipeline.PipelineContext) error {
	pctx.Set("end_time", time.Now().UTC().Format(time.RFC3339))
	return pipeline.StopSignal{}
}
