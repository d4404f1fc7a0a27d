/*
errors.go - Centralized error types for the sales core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch with errors.Is on the sentinels or errors.As on the
  structured types.

ERROR CATEGORIES:
  1. Validation - malformed caller input, rejected before any write
  2. Conflict   - receipt key collision that cannot be resolved
  3. Storage    - the storage engine failed; fatal for the operation

  ImportSkip is not an error: it is the per-file outcome of an import
  that could not become an order. It is collected, never returned.

USAGE:
  id, err := ledger.RecordOrder(ctx, order)
  var conflict *pos.ConflictError
  if errors.As(err, &conflict) {
      // another order already owns conflict.ReceiptKey
  }

SEE ALSO:
  - ledger.go: Produces Validation, Conflict and Storage errors
  - receipt/importer.go: Produces ImportSkip outcomes
*/
package pos

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is wrapped by every ConflictError.
	ErrConflict = errors.New("receipt key conflict")

	// ErrStorage is wrapped by every StorageError.
	ErrStorage = errors.New("storage failure")

	// ErrDuplicateReceiptKey is returned by a Store when an insert violates
	// the receipt key uniqueness constraint.
	ErrDuplicateReceiptKey = errors.New("duplicate receipt key")

	// ErrStoreRequired is returned when an operation needs a store
	// capability the configured store does not have.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed numeric or quantity input.
type ValidationError struct {
	Field   string // e.g. "lines[2].quantity", "paid"
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid is shorthand for constructing a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError is returned when a receipt key collides with an existing
// order that cannot be located afterwards.
type ConflictError struct {
	ReceiptKey string
	Cause      error
}

func (e *ConflictError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("receipt key %q conflicts with an order that could not be resolved: %v", e.ReceiptKey, e.Cause)
	}
	return fmt.Sprintf("receipt key %q conflicts with an order that could not be resolved", e.ReceiptKey)
}

func (e *ConflictError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrConflict}
	}
	return []error{ErrConflict, e.Cause}
}

// StorageError wraps a failure of the underlying storage engine.
type StorageError struct {
	Op  string // e.g. "record order", "list orders"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// storageErr wraps err unless it is already classified.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) || errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ImportSkip records why one receipt file did not become an order.
type ImportSkip struct {
	File   string
	Reason SkipReason
	Err    error // nil for reasons that are not failures
}

func (s ImportSkip) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s: %s: %v", s.File, s.Reason, s.Err)
	}
	return fmt.Sprintf("%s: %s", s.File, s.Reason)
}

// SkipReason classifies an ImportSkip.
type SkipReason string

const (
	SkipUnreadable   SkipReason = "unreadable"
	SkipNoItems      SkipReason = "no item lines"
	SkipRecordFailed SkipReason = "record failed"
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict returns true for unresolved receipt key collisions.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
