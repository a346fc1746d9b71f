package resources

import "fmt"

// Operation tags a resource error with the attempted operation.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpMove   Operation = "move"
	OpDelete Operation = "delete"
	OpStat   Operation = "stat"
)

// Kind classifies resource failures so callers can distinguish a missing
// resource from an access problem.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindIO               Kind = "io"
)

// Error is a typed resource failure carrying the operation, locator and
// classification.
type Error struct {
	Op      Operation
	Locator string
	Kind    Kind
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resource %s failed (%s): %s: %v", e.Op, e.Kind, e.Locator, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a resource not-found error.
func IsNotFound(err error) bool {
	re, ok := err.(*Error)
	return ok && re.Kind == KindNotFound
}

// IsPermissionDenied reports whether err is a permission error.
func IsPermissionDenied(err error) bool {
	re, ok := err.(*Error)
	return ok && re.Kind == KindPermissionDenied
}
