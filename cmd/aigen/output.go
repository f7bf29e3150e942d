package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ravi-parthasarathy/aigen/pkg/chat"
	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// writeOutputContext writes the final context to path: YAML for .yaml/.yml,
// indented JSON otherwise. An empty path is a no-op.
func writeOutputContext(path string, pctx *pipeline.PipelineContext) error {
	if path == "" {
		return nil
	}
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = pctx.Dump()
	default:
		data, err = json.MarshalIndent(pctx.Snapshot(), "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	return nil
}

func writeEntries(w io.Writer, entries []chat.Entry) error {
	if entries == nil {
		entries = []chat.Entry{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return enc.Close()
}
