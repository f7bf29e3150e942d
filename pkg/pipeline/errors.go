package pipeline

import "fmt"

// ValidationError reports a missing or invalid node parameter or context key.
type ValidationError struct {
	Node    string // node name, e.g. "CopyVariable"
	Field   string // parameter or context key at fault
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Node != "" && e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Node, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	default:
		return e.Message
	}
}

// Invalid is shorthand for building a *ValidationError.
func Invalid(node, field, format string, args ...any) error {
	return &ValidationError{Node: node, Field: field, Message: fmt.Sprintf(format, args...)}
}

// UnknownNodeError is returned when an instruction names an unregistered node.
type UnknownNodeError struct {
	Name string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node %q", e.Name)
}
