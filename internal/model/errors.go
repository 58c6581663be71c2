package model

import (
	"errors"
	"fmt"
)

// Code classifies adapter failures.
type Code int

const (
	CodeStore Code = iota + 1
	CodeInvalidCriteria
	CodeUniquenessConflict
	CodeNotFound
	CodeSerialization
)

func (c Code) String() string {
	switch c {
	case CodeStore:
		return "store error"
	case CodeInvalidCriteria:
		return "invalid criteria"
	case CodeUniquenessConflict:
		return "uniqueness conflict"
	case CodeNotFound:
		return "not found"
	case CodeSerialization:
		return "serialization error"
	}
	return "unknown error"
}

// Error is a classified adapter error. Two errors match with errors.Is when their codes match.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrStore              = &Error{Code: CodeStore, Message: "store unavailable"}
	ErrInvalidCriteria    = &Error{Code: CodeInvalidCriteria, Message: "invalid criteria"}
	ErrUniquenessConflict = &Error{Code: CodeUniquenessConflict, Message: "record conflicts with an existing one"}
	// ErrNotFound carries the same message for every lookup key.
	ErrNotFound      = &Error{Code: CodeNotFound, Message: "record not found"}
	ErrSerialization = &Error{Code: CodeSerialization, Message: "unable to serialise user"}
)

// NewStoreError wraps a backend failure.
func NewStoreError(op string, cause error) error {
	return &Error{Code: CodeStore, Message: op, Cause: cause}
}

// NewInvalidCriteriaError reports a malformed lookup.
func NewInvalidCriteriaError(msg string) error {
	return &Error{Code: CodeInvalidCriteria, Message: msg}
}

// NewUniquenessConflictError reports a duplicate email, token or provider link.
func NewUniquenessConflictError(cause error) error {
	return &Error{Code: CodeUniquenessConflict, Message: ErrUniquenessConflict.Message, Cause: cause}
}

// CodeOf returns the classification of err, or 0 if it is not an adapter error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
