package persist

import "fmt"

// Op tags a persistence error with the failed operation.
type Op string

const (
	OpRead     Op = "read"
	OpWrite    Op = "write"
	OpAppend   Op = "append"
	OpValidate Op = "validate"
	OpMigrate  Op = "migrate"
)

// Error is a typed persistence failure carrying path/operation/version
// context for remediation.
type Error struct {
	Op          Op
	Interaction string
	Version     int
	Err         error
}

func (e *Error) Error() string {
	if e.Version != 0 {
		return fmt.Sprintf("persistence %s failed for %s (version %d): %v", e.Op, e.Interaction, e.Version, e.Err)
	}
	return fmt.Sprintf("persistence %s failed for %s: %v", e.Op, e.Interaction, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
