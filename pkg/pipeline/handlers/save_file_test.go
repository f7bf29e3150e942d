package handlers_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

func TestSaveFileCreatesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.txt")
	pctx := pipeline.NewPipelineContext()
	pctx.Set("answer", "hello world")

	if err := runNode(t, pctx, pipeline.NodeSaveFile, map[string]any{"file_path": path, "input": "answer"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("got %q, want %q", data, "hello world")
	}
}

func TestSaveFileCreatesParentDirs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	pctx := pipeline.NewPipelineContext()
	pctx.Set("dir", dir)
	pctx.Set("v", "x")

	if err := runNode(t, pctx, pipeline.NodeSaveFile, map[string]any{"file_path": "${dir}/a/b/c.txt", "input": "v"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a", "b", "c.txt")); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestSaveFileNonString(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "list.txt")
	pctx := pipeline.NewPipelineContext()
	pctx.Set("items", []any{"a", "b"})

	if err := runNode(t, pctx, pipeline.NodeSaveFile, map[string]any{"file_path": path, "input": "items"}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "[a b]" {
		t.Errorf("got %q, want %q", data, "[a b]")
	}
}

func TestReadSaveRoundtrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	pctx := pipeline.NewPipelineContext()
	if err := runNode(t, pctx, pipeline.NodeReadFile, map[string]any{"file_path": src, "output": "body"}); err != nil {
		t.Fatal(err)
	}
	if err := runNode(t, pctx, pipeline.NodeSaveFile, map[string]any{"file_path": dst, "input": "body"}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "payload" {
		t.Errorf("roundtrip = %q", data)
	}
}

func TestSaveFileMissingInput(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "never.txt")
	pctx := pipeline.NewPipelineContext()
	wantValidation(t, runNode(t, pctx, pipeline.NodeSaveFile, map[string]any{"file_path": path, "input": "ghost"}), "input")
	if _, err := os.Stat(path); err == nil {
		t.Error("file written despite missing input")
	}
}

func TestSaveFileMissingParams(t *testing.T) {
	t.Parallel()
	pctx := pipeline.NewPipelineContext()
	wantValidation(t, runNode(t, pctx, pipeline.NodeSaveFile, map[string]any{"input": "x"}), "file_path")
	wantValidation(t, runNode(t, pctx, pipeline.NodeSaveFile, map[string]any{"file_path": "x"}), "input")
}
