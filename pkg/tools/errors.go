package tools

import "fmt"

// ValidationError reports tool input that failed schema validation.
type ValidationError struct {
	Tool   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool input validation failed for %q: %s", e.Tool, e.Reason)
}

// Error is a typed tool-handling failure. Op is one of "resolve",
// "load", "execute" or "format".
type Error struct {
	Tool string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool %s failed for %q: %v", e.Op, e.Tool, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
