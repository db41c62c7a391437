package service

import (
	"errors"
	"fmt"

	"supplychain-ledger/internal/repository"
)

// Kind classifies a ledger failure for callers.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindDuplicateID        Kind = "duplicate_id"
	KindConflict           Kind = "conflict"
	KindInvalidInput       Kind = "invalid_input"
	KindStorageUnavailable Kind = "storage_unavailable"
)

// Sentinels for errors.Is.
var (
	ErrUnauthenticated    = &LedgerError{Kind: KindUnauthenticated}
	ErrForbidden          = &LedgerError{Kind: KindForbidden}
	ErrNotFound           = &LedgerError{Kind: KindNotFound}
	ErrDuplicateID        = &LedgerError{Kind: KindDuplicateID}
	ErrConflict           = &LedgerError{Kind: KindConflict}
	ErrInvalidInput       = &LedgerError{Kind: KindInvalidInput}
	ErrStorageUnavailable = &LedgerError{Kind: KindStorageUnavailable}
)

// LedgerError is the single error type returned by ledger operations.
// Err holds internal detail that is logged but never shown to callers.
type LedgerError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *LedgerError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is matches any LedgerError of the same kind.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && t.Kind == e.Kind
}

// Message is the caller-safe description.
func (e *LedgerError) Message() string {
	if e.Reason != "" {
		return e.Reason
	}
	switch e.Kind {
	case KindUnauthenticated:
		return "authentication required"
	case KindForbidden:
		return "not permitted"
	case KindNotFound:
		return "not found"
	case KindDuplicateID:
		return "product id already exists"
	case KindConflict:
		return "concurrent update, retry"
	case KindInvalidInput:
		return "invalid input"
	default:
		return "storage unavailable"
	}
}

func newError(kind Kind, reason string, err error) *LedgerError {
	return &LedgerError{Kind: kind, Reason: reason, Err: err}
}

// AsLedgerError returns err as a *LedgerError, wrapping anything else as StorageUnavailable.
func AsLedgerError(err error) *LedgerError {
	var le *LedgerError
	if errors.As(err, &le) {
		return le
	}
	return newError(KindStorageUnavailable, "", err)
}

// storageError maps repository failures onto ledger kinds.
func storageError(err error, reason string) *LedgerError {
	var le *LedgerError
	switch {
	case errors.As(err, &le):
		return le
	case errors.Is(err, repository.ErrNotFound):
		return newError(KindNotFound, reason, err)
	case errors.Is(err, repository.ErrDuplicate), errors.Is(err, repository.ErrStaleVersion):
		return newError(KindConflict, "", err)
	default:
		return newError(KindStorageUnavailable, "", err)
	}
}
