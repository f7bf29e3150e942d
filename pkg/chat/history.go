package chat

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// History is the committed, ordered transcript sent to the model.
// Entries are copied on the way in and out, so appended turns cannot be
// changed through a retained reference.
type History struct {
	entries []Entry
}

// NewHistory returns an empty history.
func NewHistory() *History { return &History{} }

// Add appends item, which may be a Buffer, an Entry (or pointer), a map in
// entry shape, or a slice of any of those. A nil item is a no-op. Any other
// shape yields a *TypeError and nothing from the call is appended.
func (h *History) Add(item any) error {
	entries, err := normalize(item)
	if err != nil {
		return err
	}
	h.entries = append(h.entries, entries...)
	return nil
}

// Data returns a copy of the entries.
func (h *History) Data() []Entry {
	out := make([]Entry, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of entries.
func (h *History) Len() int { return len(h.entries) }

// Clear empties the history.
func (h *History) Clear() { h.entries = nil }

// Load replaces the entries with those stored in the YAML file at path.
// The history is cleared first, also when reading fails.
func (h *History) Load(path string) error {
	h.Clear()
	entries, err := readEntries(path)
	if err != nil {
		return err
	}
	h.entries = entries
	return nil
}

// Save writes the entries to path as YAML, creating parent directories.
func (h *History) Save(path string) error {
	return writeEntries(path, h.entries)
}

// ─── normalization ───────────────────────────────────────────────────────────

func normalize(item any) ([]Entry, error) {
	switch v := item.(type) {
	case nil:
		return nil, nil
	case []Entry:
		out := make([]Entry, len(v))
		for i, e := range v {
			out[i] = e.clone()
		}
		return out, nil
	case []Buffer:
		out := make([]Entry, 0, len(v))
		for _, b := range v {
			e, err := normalizeOne(b)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case []map[string]any:
		out := make([]Entry, 0, len(v))
		for _, m := range v {
			e, err := normalizeOne(m)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case []any:
		out := make([]Entry, 0, len(v))
		for _, x := range v {
			e, err := normalizeOne(x)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	default:
		e, err := normalizeOne(item)
		if err != nil {
			return nil, err
		}
		return []Entry{e}, nil
	}
}

func normalizeOne(item any) (Entry, error) {
	switch v := item.(type) {
	case Buffer:
		return v.ToEntry(""), nil
	case Entry:
		return v.clone(), nil
	case *Entry:
		if v == nil {
			return Entry{}, &TypeError{Value: item, Want: "buffer or entry"}
		}
		return v.clone(), nil
	case map[string]any:
		return decodeEntry(v)
	default:
		return Entry{}, &TypeError{Value: item, Want: "buffer or entry"}
	}
}

// decodeEntry converts a loosely typed {role, content} map, as found in a
// pipeline context or a YAML document, into an Entry.
func decodeEntry(m map[string]any) (Entry, error) {
	var e Entry
	if err := mapstructure.Decode(m, &e); err != nil {
		return Entry{}, &TypeError{Value: m, Want: fmt.Sprintf("entry map (%v)", err)}
	}
	if e.Role == "" {
		return Entry{}, &TypeError{Value: m, Want: "entry map with a role"}
	}
	return e, nil
}

// ─── YAML files ──────────────────────────────────────────────────────────────

func readEntries(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var entries []Entry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return entries, nil
}

func writeEntries(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save history: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
