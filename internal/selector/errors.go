// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package selector

import (
	"errors"
	"fmt"
)

// Kind identifies which selector rule was violated.
type Kind int

const (
	KindUnknown Kind = iota
	KindConflictingSource
	KindCountMismatch
	KindDuplicateInstanceID
	KindInvalidRange
	KindMalformedInput
)

var kindNames = map[Kind]string{
	KindUnknown:             "Unknown",
	KindConflictingSource:   "ConflictingSource",
	KindCountMismatch:       "CountMismatch",
	KindDuplicateInstanceID: "DuplicateInstanceId",
	KindInvalidRange:        "InvalidRange",
	KindMalformedInput:      "MalformedInput",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrConflictingSource   = errors.New("conflicting instance sources")
	ErrCountMismatch       = errors.New("instance count mismatch")
	ErrDuplicateInstanceID = errors.New("duplicate instance id")
	ErrInvalidRange        = errors.New("invalid instance range")
	ErrMalformedInput      = errors.New("malformed selector input")
)

var kindSentinels = map[Kind]error{
	KindConflictingSource:   ErrConflictingSource,
	KindCountMismatch:       ErrCountMismatch,
	KindDuplicateInstanceID: ErrDuplicateInstanceID,
	KindInvalidRange:        ErrInvalidRange,
	KindMalformedInput:      ErrMalformedInput,
}

// Error is a selector failure. It never carries a partial result.
type Error struct {
	Kind   Kind
	Detail string
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return "instance selector: " + e.Detail
}

// Unwrap exposes the sentinel for the error's kind.
func (e *Error) Unwrap() error {
	return kindSentinels[e.Kind]
}

// KindOf returns the selector kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var selErr *Error
	if errors.As(err, &selErr) {
		return selErr.Kind
	}
	return KindUnknown
}
