package store

import "fmt"

// ValidationError indicates a caller-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates a (user, key) uniqueness violation. Two writers
// that allocated the same storage index for a conversation end up here.
type ConflictError struct {
	UserID string
	Key    string
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("memory entry already exists: user=%s key=%s", e.UserID, e.Key)
}

func (e *ConflictError) Unwrap() error { return e.Err }
