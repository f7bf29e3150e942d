package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseYAML parses an instruction document into a Pipeline.
//
// Two shapes are accepted: a bare sequence of instructions
//
//	- node: SetVariable
//	  params: {name: greeting, value: hello}
//
// or a mapping with a name and a steps sequence.
func ParseYAML(src []byte) (*Pipeline, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(src, &root); err != nil {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}
	if len(root.Content) == 0 {
		return &Pipeline{}, nil
	}
	doc := root.Content[0]

	p := &Pipeline{}
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&p.Steps); err != nil {
			return nil, fmt.Errorf("yaml decode steps: %w", err)
		}
	case yaml.MappingNode:
		if err := doc.Decode(p); err != nil {
			return nil, fmt.Errorf("yaml decode pipeline: %w", err)
		}
	case yaml.ScalarNode:
		if doc.Tag == "!!null" {
			return p, nil
		}
		return nil, fmt.Errorf("yaml: expected a list of instructions, got scalar %q", doc.Value)
	default:
		return nil, fmt.Errorf("yaml: expected a list of instructions")
	}

	for i, s := range p.Steps {
		if s.Node == "" {
			return nil, fmt.Errorf("step %d: missing node name", i)
		}
		if s.Params == nil {
			p.Steps[i].Params = map[string]any{}
		}
	}
	return p, nil
}

// ParseFile reads and parses an instruction file.
func ParseFile(path string) (*Pipeline, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline %s: %w", path, err)
	}
	p, err := ParseYAML(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
