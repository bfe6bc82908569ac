// Package derr defines the uniform error taxonomy used across the
// forwarding core.
package derr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error by which layer produced it and why.
type Kind string

const (
	// KindParse marks a DNS message that could not be decoded sufficiently
	// (a missing/short header, an unparseable question section).
	KindParse Kind = "parse"

	// KindFraming marks a TCP short read, oversized length, or write
	// truncation at the framing layer.
	KindFraming Kind = "framing"

	// KindIO marks a transport-level read/write/connect failure.
	KindIO Kind = "io"

	// KindClosed marks a connection that was torn down underneath a
	// request that was using it.
	KindClosed Kind = "closed"

	// KindTimeout marks the engine's outer wall-clock budget elapsing
	// with no reply.
	KindTimeout Kind = "timeout"

	// KindExhausted marks an id pool that is temporarily empty. Never
	// surfaced to a caller - it is converted into a blocking wait.
	KindExhausted Kind = "exhausted"
)

// Error is the uniform error type returned by every public operation in the
// forwarding core. It carries a Kind so callers can branch on category
// instead of matching strings.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error of the given kind with a message.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Msg: msg}
}

// Wrap constructs an *Error of the given kind wrapping a lower-level cause.
// Wrapping a nil cause returns nil, so Wrap is safe to call unconditionally
// on the result of a fallible operation.
func Wrap(k Kind, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: k, Msg: msg, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// ErrConnectionClosed is the fixed message every pending waiter sees when
// the connection underneath it is torn down.
var ErrConnectionClosed = New(KindClosed, "connection to server was closed")
