package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// SaveFile writes context[input] to a file as text, creating parent
// directories. Non-string values are rendered with fmt.Sprint.
type SaveFile struct {
	FilePath string `mapstructure:"file_path"`
	Input    string `mapstructure:"input"`
}

// NewSaveFile is the pipeline.NodeFactory for SaveFile.
func NewSaveFile(params map[string]any) (pipeline.Node, error) {
	n := &SaveFile{}
	if err := decodeParams(pipeline.NodeSaveFile, params, n); err != nil {
		return nil, err
	}
	if err := require(pipeline.NodeSaveFile, "file_path", n.FilePath); err != nil {
		return nil, err
	}
	if err := require(pipeline.NodeSaveFile, "input", n.Input); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *SaveFile) Name() string { return pipeline.NodeSaveFile }

func (n *SaveFile) Run(_ context.Context, pctx *pipeline.PipelineContext) error {
	input := pctx.Resolve(n.Input)
	value, ok := pctx.Get(input)
	if !ok {
		return pipeline.Invalid(pipeline.NodeSaveFile, "input", "variable %q does not exist", input)
	}
	content, isStr := value.(string)
	if !isStr {
		content = fmt.Sprint(value)
	}

	path := pctx.Resolve(n.FilePath)
	// Create parent directories if necessary.
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("SaveFile: create dirs %q: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("SaveFile: write %q: %w", path, err)
	}
	return nil
}
