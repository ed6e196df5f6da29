// Package apperr defines the error taxonomy shared by the progression engine,
// the sync adapter and the generative service client. Every error here is
// recoverable at the operation boundary.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotReady is returned when the store or session has not finished loading.
// Nothing is retried automatically.
var ErrNotReady = errors.New("session not ready")

// ErrNotFound is returned when an objective, subtask or document does not exist.
var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with the kind and id of the missing item.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// ValidationError rejects an operation before any state change or write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Invalid is shorthand for &ValidationError{Field: field, Reason: reason}.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StoreWriteError reports a failed document store operation. The local
// optimistic state is not rolled back.
type StoreWriteError struct {
	Op   string // create | merge | delete
	Path string
	Err  error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// PartialWriteError reports a multi-document write where some documents were
// written and others were not.
type PartialWriteError struct {
	Succeeded int
	Failed    []*StoreWriteError
}

func (e *PartialWriteError) Error() string {
	paths := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		paths[i] = f.Path
	}
	return fmt.Sprintf("partial write: %d succeeded, %d failed (%s)",
		e.Succeeded, len(e.Failed), strings.Join(paths, ", "))
}

func (e *PartialWriteError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}

// ExternalServiceError wraps failures of the generative service, including
// malformed payloads.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsStoreWrite(err error) bool {
	var s *StoreWriteError
	if errors.As(err, &s) {
		return true
	}
	var p *PartialWriteError
	return errors.As(err, &p)
}

func IsExternal(err error) bool {
	var x *ExternalServiceError
	return errors.As(err, &x)
}
