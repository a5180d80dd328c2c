// ABOUTME: Closed error taxonomy shared across the storage engine
// ABOUTME: Sentinel errors plus a typed wrapper carrying the failing op

package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of failure categories the engine reports.
type Kind int

const (
	_ Kind = iota
	NotFound
	DuplicateKey
	InvalidRecord
	InvalidSchema
	ImmutablePrimaryKey
	AlreadyExists
	IOFailure
	Corruption
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case DuplicateKey:
		return "DuplicateKey"
	case InvalidRecord:
		return "InvalidRecord"
	case InvalidSchema:
		return "InvalidSchema"
	case ImmutablePrimaryKey:
		return "ImmutablePrimaryKey"
	case AlreadyExists:
		return "AlreadyExists"
	case IOFailure:
		return "IOFailure"
	case Corruption:
		return "Corruption"
	default:
		return "Unknown"
	}
}

// Sentinel errors for errors.Is comparisons.
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrInvalidRecord       = errors.New("invalid record")
	ErrInvalidSchema       = errors.New("invalid schema")
	ErrImmutablePrimaryKey = errors.New("primary key is immutable")
	ErrAlreadyExists       = errors.New("already exists")
	ErrIOFailure           = errors.New("io failure")
	ErrCorruption          = errors.New("corruption detected")
)

func sentinelFor(k Kind) error {
	switch k {
	case NotFound:
		return ErrNotFound
	case DuplicateKey:
		return ErrDuplicateKey
	case InvalidRecord:
		return ErrInvalidRecord
	case InvalidSchema:
		return ErrInvalidSchema
	case ImmutablePrimaryKey:
		return ErrImmutablePrimaryKey
	case AlreadyExists:
		return ErrAlreadyExists
	case IOFailure:
		return ErrIOFailure
	case Corruption:
		return ErrCorruption
	default:
		return errors.New("unknown error")
	}
}

// Error wraps a Kind with the operation that failed and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return sentinelFor(e.Kind)
}

// New builds an *Error for op with no underlying cause.
func New(kind Kind, op string) error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an *Error for op around an underlying cause.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return errors.Is(err, sentinelFor(kind))
}
