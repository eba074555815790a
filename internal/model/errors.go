package model

import (
	"errors"
	"fmt"
)

// Common errors used across the application
var (
	// Storage errors
	ErrForeignMessage  = errors.New("message does not belong to this storage backend")
	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyUsername   = errors.New("username is empty")

	// Mail errors
	ErrUnknownRecipient = errors.New("unknown recipient")
	ErrEmptyMessage     = errors.New("message body is empty")
)

// ErrorKind classifies storage failures
type ErrorKind int

const (
	// KindIO covers file system failures: permissions, disk full, rename failure
	KindIO ErrorKind = iota
	// KindParse covers corrupt or undecodable persisted data
	KindParse
	// KindBackend covers failures specific to a backend, e.g. connectivity
	KindBackend
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindParse:
		return "parse"
	case KindBackend:
		return "backend"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StorageError is the single failure type surfaced by storage backends
type StorageError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err as a StorageError. A nil err yields nil.
func NewStorageError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err carries a StorageError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Kind == kind
}
