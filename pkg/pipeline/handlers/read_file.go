package handlers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// ReadFile reads a text file into the context. One trailing newline is dropped.
type ReadFile struct {
	FilePath string `mapstructure:"file_path"`
	Output   string `mapstructure:"output"`
	Mode     string `mapstructure:"mode"`
}

// NewReadFile is the pipeline.NodeFactory for ReadFile.
func NewReadFile(params map[string]any) (pipeline.Node, error) {
	n := &ReadFile{}
	if err := decodeParams(pipeline.NodeReadFile, params, n); err != nil {
		return nil, err
	}
	if err := require(pipeline.NodeReadFile, "file_path", n.FilePath); err != nil {
		return nil, err
	}
	if err := require(pipeline.NodeReadFile, "output", n.Output); err != nil {
		return nil, err
	}
	mode, err := checkMode(pipeline.NodeReadFile, n.Mode)
	if err != nil {
		return nil, err
	}
	n.Mode = mode
	return n, nil
}

func (n *ReadFile) Name() string { return pipeline.NodeReadFile }

func (n *ReadFile) Run(_ context.Context, pctx *pipeline.PipelineContext) error {
	path := pctx.Resolve(n.FilePath)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ReadFile: read %q: %w", path, err)
	}
	text := strings.TrimSuffix(string(data), "\n")
	text = strings.TrimSuffix(text, "\r")
	return store(pctx, pipeline.NodeReadFile, pctx.Resolve(n.Output), n.Mode, text)
}
