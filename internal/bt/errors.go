package bt

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned once a session has been destroyed.
	ErrSessionClosed = errors.New("bt: session closed")
	// ErrProfileUnavailable means the binder has no handle.
	ErrProfileUnavailable = errors.New("bt: profile service unavailable")
	// ErrNotBound is returned by binders that were never bound.
	ErrNotBound = errors.New("bt: profile service not bound")
)

// Kind classifies a failed attempt.
type Kind int

const (
	KindNone Kind = iota
	KindBindingTimeout
	KindPairingTimeout
	KindProfileConnectFailure
	KindPlatformCallFault
)

func (k Kind) String() string {
	switch k {
	case KindBindingTimeout:
		return "binding timeout"
	case KindPairingTimeout:
		return "pairing timeout"
	case KindProfileConnectFailure:
		return "profile connect failure"
	case KindPlatformCallFault:
		return "platform call fault"
	default:
		return "none"
	}
}

// Error is a failure tagged with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "bt: " + e.Kind.String()
	}
	return fmt.Sprintf("bt: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or KindNone.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
