package ledger

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches exactly one kind via errors.Is.
var (
	ErrValidation  = errors.New("ledger: validation failed")
	ErrNotFound    = errors.New("ledger: not found")
	ErrConcurrency = errors.New("ledger: concurrent modification")
	ErrPersistence = errors.New("ledger: persistence failure")
)

// Causes carried inside an Error.
var (
	// ErrInvalidQuantity indicates a zero quantity change.
	ErrInvalidQuantity = errors.New("ledger: quantity change must be non zero")
	// ErrUnknownType indicates an unrecognised transaction type or category.
	ErrUnknownType = errors.New("ledger: unknown transaction type")
	// ErrSignMismatch indicates a quantity whose sign contradicts the transaction type.
	ErrSignMismatch = errors.New("ledger: quantity sign does not match transaction type")
	// ErrOutOfOrder indicates an append dated before the latest entry of its stream.
	ErrOutOfOrder = errors.New("ledger: transaction date precedes latest entry")
	// ErrItemNotFound indicates the item does not resolve within the company.
	ErrItemNotFound = errors.New("ledger: item not found")
	// ErrEntryNotFound indicates a stream without entries.
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrNothingToVoid indicates a void request matching no uncompensated entries.
	ErrNothingToVoid = errors.New("ledger: no entries to compensate")
	// ErrLockTimeout indicates the stream lock was not acquired within the configured wait.
	ErrLockTimeout = errors.New("ledger: stream lock wait exceeded")
	// ErrChainBroken indicates a write that could not be chained onto the stream's latest
	// committed state, such as a second compensation of one entry.
	ErrChainBroken = errors.New("ledger: running balance chain broken")
)

// Error carries the kind, the failing operation and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func validationError(op string, err error) error {
	return &Error{Kind: ErrValidation, Op: op, Err: err}
}

func notFoundError(op string, err error) error {
	return &Error{Kind: ErrNotFound, Op: op, Err: err}
}

func concurrencyError(op string, err error) error {
	return &Error{Kind: ErrConcurrency, Op: op, Err: err}
}

func persistenceError(op string, err error) error {
	return &Error{Kind: ErrPersistence, Op: op, Err: err}
}

// IsKind reports whether err is already classified by this package.
func IsKind(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
