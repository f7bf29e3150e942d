package handlers_test

import (
	"errors"
	"testing"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
	"github.com/ravi-parthasarathy/aigen/pkg/pipeline/handlers"
)

// runNode builds name from params through the default registry and runs it.
func runNode(t *testing.T, pctx *pipeline.PipelineContext, name string, params map[string]any) error {
	t.Helper()
	reg := handlers.NewDefaultRegistry(handlers.Options{Chat: handlers.ChatCallConfig{Backends: handlers.MockBackends("")}})
	node, err := reg.New(name, params)
	if err != nil {
		return err
	}
	return node.Run(t.Context(), pctx)
}

// wantValidation fails unless err is a *pipeline.ValidationError on field.
func wantValidation(t *testing.T, err error, field string) {
	t.Helper()
	var ve *pipeline.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *pipeline.ValidationError", err)
	}
	if ve.Field != field {
		t.Errorf("field = %q, want %q", ve.Field, field)
	}
}
