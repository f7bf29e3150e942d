package handlers

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// Write modes for nodes that store a value.
const (
	modeReplace = "replace"
	modeAppend  = "append"
)

// decodeParams decodes a node's parameter bag into out, a pointer to a struct
// with mapstructure tags. Scalars are converted loosely ("256" fills an int).
func decodeParams(node string, params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("%s: params decoder: %w", node, err)
	}
	if err := dec.Decode(params); err != nil {
		return pipeline.Invalid(node, "params", "%v", err)
	}
	return nil
}

// require fails with a ValidationError naming field when value is empty.
func require(node, field, value string) error {
	if value == "" {
		return pipeline.Invalid(node, field, "is required")
	}
	return nil
}

// checkMode validates a mode parameter; empty means replace.
func checkMode(node, mode string) (string, error) {
	switch mode {
	case "", modeReplace:
		return modeReplace, nil
	case modeAppend:
		return modeAppend, nil
	default:
		return "", pipeline.Invalid(node, "mode", "must be %q or %q, got %q", modeReplace, modeAppend, mode)
	}
}

// store writes value under key according to mode.
func store(pctx *pipeline.PipelineContext, node, key, mode string, value any) error {
	if mode != modeAppend {
		pctx.Set(key, value)
		return nil
	}
	if err := pctx.Append(key, value); err != nil {
		return pipeline.Invalid(node, key, "%v", err)
	}
	return nil
}

// lookup resolves ref against the context and, when the result names a
// context key, returns that key's value; otherwise the resolved string.
func lookup(pctx *pipeline.PipelineContext, ref string) any {
	resolved := pctx.Resolve(ref)
	if v, ok := pctx.Get(resolved); ok {
		return v
	}
	return resolved
}

// lookupString is lookup for values that must end up as strings.
func lookupString(pctx *pipeline.PipelineContext, ref string) string {
	if s, ok := lookup(pctx, ref).(string); ok {
		return s
	}
	return pctx.Resolve(ref)
}
