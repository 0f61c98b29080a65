// pkg/lunaris/error.go
// Package lunaris holds the error taxonomy the session boundary classifies
// every statement-level failure into before it reaches a client.
package lunaris

import (
	"errors"
	"fmt"
)

// Kind is one of the canonical error kinds surfaced to the client, per
// spec §7, plus DuplicateKey (spec §9's primary-key open question
// resolution, which needs its own kind distinct from DuplicateTable).
type Kind uint16

const (
	KindParse Kind = iota + 1
	KindUnknownTable
	KindUnknownColumn
	KindTypeMismatch
	KindValueTooLong
	KindDuplicateTable
	KindDuplicateKey
	KindInternalCorruption
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "Parse"
	case KindUnknownTable:
		return "UnknownTable"
	case KindUnknownColumn:
		return "UnknownColumn"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindValueTooLong:
		return "ValueTooLong"
	case KindDuplicateTable:
		return "DuplicateTable"
	case KindDuplicateKey:
		return "DuplicateKey"
	case KindInternalCorruption:
		return "InternalCorruption"
	case KindIO:
		return "IO"
	default:
		return "Unknown"
	}
}

// Error is the canonical form every statement-level failure takes by the
// time it reaches the wire. Code is the wire protocol's u16 error code
// (spec §6), equal to Kind's underlying value.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Code returns the wire protocol's u16 error code for e.Kind.
func (e *Error) Code() uint16 {
	return uint16(e.Kind)
}

// New builds an Error of kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Fatal reports whether an error of this kind ends the connection rather
// than just the statement. Per spec §7, only InternalCorruption is fatal
// to the connection (and additionally marks the database read-only for
// the server process — see pkg/session.Server.corrupted).
func (k Kind) Fatal() bool {
	return k == KindInternalCorruption
}

// As returns e's Kind and Message if err is (or wraps) an *Error, and
// false otherwise.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
