package schedule

import "fmt"

// FormatError reports a malformed date or time string.
type FormatError struct {
	Field    string // "date" or "time"
	Value    string
	Expected string
	Example  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("Invalid %s format '%s'. Use %s format (e.g., %s)", e.Field, e.Value, e.Expected, e.Example)
}

// ValidationError reports well-formed input that breaks a rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type NotFoundError struct {
	TaskID int
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("Task with ID %d not found.", e.TaskID) }

// PersistenceError wraps a failed blob write. The in-memory state has
// already been rolled back when it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("schedule: persist after %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
