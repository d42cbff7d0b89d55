package connector

import (
	"errors"
	"fmt"
)

// RunError represents a fatal error detected during a run. Recoverable
// conditions (relationship endpoints that fail to resolve) never become
// RunErrors; they are logged and the instance is skipped.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// State is the phase the run failed in.
	State RunState

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// RunErrorCode categorizes fatal run errors.
type RunErrorCode string

const (
	// ErrCodeLoader indicates the source could not be opened or parsed.
	ErrCodeLoader RunErrorCode = "LOADER_FAILED"

	// ErrCodeSchema indicates schema diff or import failed. Always fatal:
	// continuing risks writing data against a half-imported schema.
	ErrCodeSchema RunErrorCode = "SCHEMA_FAILED"

	// ErrCodeRepository indicates a repository read or write failed.
	ErrCodeRepository RunErrorCode = "REPOSITORY_FAILED"

	// ErrCodeChannel indicates a channel lock-state assertion was violated.
	// A framework invariant broke; this is never retried.
	ErrCodeChannel RunErrorCode = "CHANNEL_VIOLATION"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s in %s: %s: %v", e.Code, e.State, e.Message, e.Err)
	}
	return fmt.Sprintf("%s in %s: %s", e.Code, e.State, e.Message)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *RunError) Unwrap() error { return e.Err }

// IsSchemaError reports whether err is a fatal schema error.
func IsSchemaError(err error) bool {
	var re *RunError
	return errors.As(err, &re) && re.Code == ErrCodeSchema
}

// ResolveError reports a relationship or related-element endpoint that could
// not be resolved for one instance. Recoverable: the instance is skipped with
// a warning and the run continues.
type ResolveError struct {
	NodeKey     string
	InstanceKey string
	Attr        string
	Err         error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("node %q instance %q: resolve %q: %v", e.NodeKey, e.InstanceKey, e.Attr, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }
