package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized        = errors.New("store_not_initialized")
	ErrNotFound              = errors.New("not_found")
	ErrValidation            = errors.New("validation_failed")
	ErrStorageFailure        = errors.New("storage_failure")
	ErrQuotaExceeded         = errors.New("quota_exceeded")
	ErrConflict              = errors.New("conflict")
	ErrUnsatisfiableSchedule = errors.New("unsatisfiable_schedule")
	ErrRollbackIncomplete    = errors.New("rollback_incomplete")
	ErrUnknownIndex          = errors.New("unknown_index")

	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidInstallments = errors.New("invalid_installments")
	ErrInvalidInterval     = errors.New("invalid_interval")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidPlatform     = errors.New("invalid_platform")
	ErrOrderNotFound       = fmt.Errorf("order %w", ErrNotFound)
	ErrPaymentNotFound     = fmt.Errorf("payment %w", ErrNotFound)
	ErrPlatformNotFound    = fmt.Errorf("platform %w", ErrNotFound)
)

// ValidationError describes why an import snapshot was rejected. It is never
// partially applied.
type ValidationError struct {
	Reason   string
	Orphaned int
}

func (e *ValidationError) Error() string {
	if e.Orphaned > 0 {
		return fmt.Sprintf("%s: %s (%d orphaned payments)", ErrValidation, e.Reason, e.Orphaned)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StorageError wraps an underlying primary store failure for one operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageFailure, e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorageFailure, e.Err} }

// WrapStorage annotates err as a storage failure unless it already carries a
// domain classification.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageFailure) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotInitialized) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
