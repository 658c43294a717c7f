package broker

import (
	"errors"
	"fmt"
)

// ErrorKind classifies broker failures for the retry and circuit
// breaker layers.
type ErrorKind int

const (
	// KindFatal is a non-retryable broker error.
	KindFatal ErrorKind = iota
	// KindRetryable is a transient error worth retrying.
	KindRetryable
	// KindDisconnected means the broker connection is gone; retryable,
	// and the engine should attempt a reconnect.
	KindDisconnected
)

func (k ErrorKind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindDisconnected:
		return "disconnected"
	default:
		return "fatal"
	}
}

// Error is the typed broker error carried across the adapter boundary.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("broker %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("broker %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == KindRetryable || be.Kind == KindDisconnected
	}
	return false
}

// IsDisconnected reports whether err indicates a lost connection.
func IsDisconnected(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == KindDisconnected
	}
	return false
}
