// Package ndgrerr defines the error taxonomy from spec.md §7: InputError,
// TransportError, ProtocolError, AuthError, and the sentinel ErrCancelled.
// Retries happen inside fetch and viewstream; everything else surfaces at
// an operation boundary (streamComments, downloadBackward, ListProgramsOn).
package ndgrerr

import (
	"errors"
	"fmt"
)

// ErrCancelled marks an operation that ended because its context was
// cancelled, not because of a fault. Callers should treat it as a clean
// stop, not a failure to report.
var ErrCancelled = errors.New("ndgr: operation cancelled")

// InputError is a caller-visible mistake that is never retried: a malformed
// handle, an unknown channel alias, or an attempt to stream an ended program.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return "ndgr: invalid input: " + e.Msg }

// NewInput builds an *InputError with a formatted message.
func NewInput(format string, args ...any) *InputError {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// TransportError wraps a network-level fault (HTTP non-2xx, socket, TLS,
// idle timeout) surfaced after its component's retry budget is exhausted.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ndgr: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransport wraps err as a TransportError attributed to op.
func NewTransport(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// ProtocolError is a fatal violation of the wire contract: a missing
// required field, two ReadyForNext entries in one View slice, an empty
// WebSocket URL where one is required, or a corrupt varint.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "ndgr: protocol error: " + e.Msg }

// NewProtocol builds a *ProtocolError with a formatted message.
func NewProtocol(format string, args ...any) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// AuthError reports that timeshift activation needed credentials the
// session doesn't carry, or that the service rejected them.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return "ndgr: auth error: " + e.Msg }

// NewAuth builds an *AuthError with a formatted message.
func NewAuth(format string, args ...any) *AuthError {
	return &AuthError{Msg: fmt.Sprintf(format, args...)}
}
