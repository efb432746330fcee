package pgwire

import (
	"errors"
	"strconv"
)

// The codec never retries. Every failure is one of five kinds; callers use
// errors.Is / errors.As against these sentinels to categorise a failure
// without depending on its exact message.
var (
	// ErrTransport wraps an I/O fault: short read, closed peer, or a write
	// that could not be completed.
	ErrTransport = errors.New("pgwire: transport error")

	// ErrFraming marks a frame whose declared length disagreed with the
	// bytes actually available, or whose payload parser consumed more or
	// fewer bytes than the frame allocated.
	ErrFraming = errors.New("pgwire: framing error")

	// ErrDecode marks an otherwise well-framed payload that could not be
	// interpreted: unknown message type, invalid UTF-8, unsupported
	// protocol triple, unsupported authentication code, unknown
	// transaction-status byte.
	ErrDecode = errors.New("pgwire: decode error")

	// ErrState marks a message that is well-formed but illegal for the
	// connection's current phase.
	ErrState = errors.New("pgwire: state error")
)

// TransportError reports a transport-level failure, with the underlying
// I/O error preserved via Unwrap.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "pgwire: " + e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return ErrTransport }
func (e *TransportError) Cause() error  { return e.Err }

func transportErrorf(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// TransportErrorf lets other packages in this module report a transport
// fault (e.g. a dial failure) through the same TransportError type the
// codec itself uses.
func TransportErrorf(op string, err error) error {
	return transportErrorf(op, err)
}

// FramingError reports a frame whose length field and actual payload
// disagreed.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string { return "pgwire: framing: " + e.Reason }
func (e *FramingError) Unwrap() error { return ErrFraming }

func framingErrorf(reason string) error {
	return &FramingError{Reason: reason}
}

// DecodeError reports a well-framed payload that failed to parse.
type DecodeError struct {
	Kind   string
	Reason string
}

func (e *DecodeError) Error() string { return "pgwire: decode " + e.Kind + ": " + e.Reason }
func (e *DecodeError) Unwrap() error { return ErrDecode }

func decodeErrorf(kind, reason string) error {
	return &DecodeError{Kind: kind, Reason: reason}
}

// StateError reports a message illegal for the current phase.
type StateError struct {
	Phase   string
	Message string
}

func (e *StateError) Error() string {
	return "pgwire: illegal message " + e.Message + " in phase " + e.Phase
}
func (e *StateError) Unwrap() error { return ErrState }

func stateErrorf(phase, message string) error {
	return &StateError{Phase: phase, Message: message}
}

// NewStateError lets other packages in this module report a phase
// violation (e.g. a cancellation request where a real query was
// expected) through the same StateError type the phase machine uses.
func NewStateError(phase Phase, message string) error {
	return stateErrorf(phase.String(), message)
}

// ServerError is the opaque wire-level Error/E message: the core codec
// does not parse its payload, only preserves it for the caller.
type ServerError struct {
	Length     uint32
	RawPayload []byte
}

func (e *ServerError) Error() string {
	return "pgwire: server error frame (length " + strconv.Itoa(int(e.Length)) + ")"
}
