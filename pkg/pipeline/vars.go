package pipeline

import (
	"fmt"
	"regexp"
)

var varPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// Resolve replaces every ${name} in template with the string form of
// vars[name]. Placeholders whose name is absent are left untouched.
// Substituted text is not scanned again.
func Resolve(template string, vars map[string]any) string {
	if len(vars) == 0 {
		return template
	}
	return varPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := m[2 : len(m)-1]
		v, ok := vars[name]
		if !ok {
			return m
		}
		return fmt.Sprint(v)
	})
}

// FindVars returns the placeholder names in template in order of appearance.
func FindVars(template string) []string {
	matches := varPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m[1]
	}
	return names
}

// Resolve resolves template against the current contents of the context.
func (c *PipelineContext) Resolve(template string) string {
	return Resolve(template, c.Snapshot())
}
