package statebus

import "errors"

// Domain-specific errors for state bus operations.
var (
	// ErrNoCaller is returned by CallService before a transport is attached.
	ErrNoCaller = errors.New("statebus: no service transport attached")

	// ErrCommandTimeout is returned when no acknowledgement arrives in time.
	ErrCommandTimeout = errors.New("statebus: command acknowledgement timed out")

	// ErrCommandRejected is returned when a bridge acknowledges with an error.
	ErrCommandRejected = errors.New("statebus: command rejected")

	// ErrLinkStopped is returned for calls in flight when the link stops.
	ErrLinkStopped = errors.New("statebus: link stopped")

	// ErrInvalidPayload is returned for messages that cannot be decoded.
	ErrInvalidPayload = errors.New("statebus: invalid payload")
)
