package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// LintError describes a problem found in one step of a pipeline.
type LintError struct {
	Step    int // -1 for pipeline-level problems
	Node    string
	Message string
}

func (e LintError) Error() string {
	if e.Step >= 0 {
		return fmt.Sprintf("step %d (%s): %s", e.Step, e.Node, e.Message)
	}
	return e.Message
}

// nodeRequiredParams maps each built-in node to the parameters that must be
// present and non-empty. The linter reports all of them across all steps.
var nodeRequiredParams = map[string][]string{
	NodeSetVariable:   {"name", "value"},
	NodeCopyVariable:  {"input", "output"},
	NodePrintVariable: {"name"},
	NodeReadFile:      {"file_path", "output"},
	NodeSaveFile:      {"file_path", "input"},
	NodeLoadEnv:       {"name", "from"},
	NodeChatCall:      {"output", "prompt"},
	NodeGPTChat:       {"output", "prompt"},
}

// Validate checks every step without running anything: the node must be
// registered, its required parameters present, and its factory must accept
// the parameter bag. Returns all discovered errors (not just the first).
func Validate(p *Pipeline, reg NodeRegistry) []LintError {
	var errs []LintError
	if len(p.Steps) == 0 {
		errs = append(errs, LintError{Step: -1, Message: "pipeline has no steps"})
		return errs
	}

	for i, s := range p.Steps {
		errs = append(errs, ValidateStep(i, s)...)

		if reg == nil {
			continue
		}
		if !reg.IsRegistered(s.Node) {
			errs = append(errs, LintError{Step: i, Node: s.Node, Message: "node is not registered"})
			continue
		}
		if _, err := reg.New(s.Node, s.Params); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) && isMissingRequired(s, ve.Field) {
				continue // already reported by ValidateStep
			}
			errs = append(errs, LintError{Step: i, Node: s.Node, Message: err.Error()})
		}
	}
	return errs
}

// ValidateStep checks a single step's required parameters.
func ValidateStep(i int, s Instruction) []LintError {
	var errs []LintError
	for _, name := range nodeRequiredParams[s.Node] {
		if isMissing(s.Params, name) {
			errs = append(errs, LintError{
				Step:    i,
				Node:    s.Node,
				Message: fmt.Sprintf("missing required parameter %q", name),
			})
		}
	}
	return errs
}

func isMissingRequired(s Instruction, field string) bool {
	for _, name := range nodeRequiredParams[s.Node] {
		if name == field && isMissing(s.Params, name) {
			return true
		}
	}
	return false
}

func isMissing(params map[string]any, name string) bool {
	v, ok := params[name]
	if !ok || v == nil {
		return true
	}
	if s, isStr := v.(string); isStr && s == "" {
		return true
	}
	return false
}

// ValidateErr calls Validate and returns nil if there are no errors, or a
// combined error message listing all lint errors.
func ValidateErr(p *Pipeline, reg NodeRegistry) error {
	errs := Validate(p, reg)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("pipeline validation failed:\n  %s", strings.Join(msgs, "\n  "))
}
