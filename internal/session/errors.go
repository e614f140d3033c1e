package session

import (
	"errors"
	"fmt"
)

var (
	ErrHandshakeTimeout       = errors.New("handshake timeout")
	ErrAuthenticationRejected = errors.New("authentication rejected")
	ErrStreamClosed           = errors.New("stream closed before streaming")
	ErrIllegalTransition      = errors.New("illegal phase transition")
)

// ErrorKind classifies why a session ended.
type ErrorKind int

const (
	KindConstruction ErrorKind = iota
	KindDecode
	KindTransport
	KindHandshakeTimeout
	KindAuthRejected
	KindClosed
	KindSink
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindConstruction:
		return "construction"
	case KindDecode:
		return "decode"
	case KindTransport:
		return "transport"
	case KindHandshakeTimeout:
		return "handshake_timeout"
	case KindAuthRejected:
		return "auth_rejected"
	case KindClosed:
		return "closed"
	case KindSink:
		return "sink"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the terminal error of a session. Phase is the phase the session
// was in when it failed.
type Error struct {
	Kind  ErrorKind
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("session %s during %s: %v", e.Kind, e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification of a session error.
func KindOf(err error) (ErrorKind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
