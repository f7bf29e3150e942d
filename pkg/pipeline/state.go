package pipeline

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// PipelineContext is a thread-safe key-value store for pipeline state.
type PipelineContext struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewPipelineContext creates an empty PipelineContext.
func NewPipelineContext() *PipelineContext {
	return &PipelineContext{data: make(map[string]any)}
}

// Set stores a value under key.
func (c *PipelineContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Get retrieves a value by key.
func (c *PipelineContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Has reports whether key is present, even with a nil value.
func (c *PipelineContext) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// GetString retrieves a string value, returning "" if not found or not a string.
func (c *PipelineContext) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Append pushes value onto the list stored at key, creating the list when the
// key is absent. The stored slice is replaced, never mutated in place, so
// earlier snapshots keep their view.
func (c *PipelineContext) Append(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.data[key]
	if !ok || cur == nil {
		c.data[key] = []any{value}
		return nil
	}
	list, ok := cur.([]any)
	if !ok {
		return fmt.Errorf("append to %q: existing value is %T, not a list", key, cur)
	}
	next := slices.Clone(list)
	c.data[key] = append(next, value)
	return nil
}

// Keys returns all keys, sorted.
func (c *PipelineContext) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy of all key-value pairs.
func (c *PipelineContext) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.data)
}

// Merge copies all key-value pairs from src into this context (last-write-wins).
func (c *PipelineContext) Merge(src map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.data, src)
}

// Copy returns a new PipelineContext initialised from a snapshot of this one.
func (c *PipelineContext) Copy() *PipelineContext {
	return &PipelineContext{data: c.Snapshot()}
}

// Dump renders the context as a flat YAML mapping.
func (c *PipelineContext) Dump() ([]byte, error) {
	out, err := yaml.Marshal(c.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("context marshal: %w", err)
	}
	return out, nil
}

// checkpoint is the YAML form of a saved checkpoint.
type checkpoint struct {
	LastStep int            `yaml:"last_step"`
	Data     map[string]any `yaml:"data"`
}

// SaveCheckpoint persists the context and the index of the last completed step.
func (c *PipelineContext) SaveCheckpoint(path string, lastStep int) error {
	cp := checkpoint{LastStep: lastStep, Data: c.Snapshot()}
	data, err := yaml.Marshal(cp)
	if err != nil {
		return fmt.Errorf("checkpoint marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("checkpoint mkdir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("checkpoint write: %w", err)
	}
	return nil
}

// LoadCheckpoint restores a context from a checkpoint file.
// Returns the context and the index of the last completed step.
func LoadCheckpoint(path string) (*PipelineContext, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("checkpoint read: %w", err)
	}
	var cp checkpoint
	if err := yaml.Unmarshal(data, &cp); err != nil {
		return nil, 0, fmt.Errorf("checkpoint unmarshal: %w", err)
	}
	if cp.Data == nil {
		cp.Data = make(map[string]any)
	}
	return &PipelineContext{data: cp.Data}, cp.LastStep, nil
}
