package source

import (
	"github.com/pkg/errors"
)

var (
	// ErrDeviceTimeout means no capture arrived within the capture timeout.
	// The session may continue with the next frame.
	ErrDeviceTimeout = errors.New("device timeout")

	// ErrDeviceError means the device disconnected or entered an invalid
	// state. The session cannot continue.
	ErrDeviceError = errors.New("device error")

	// ErrIncompleteCapture means a capture lacked its color or depth image
	// while synchronized images were required.
	ErrIncompleteCapture = errors.New("incomplete capture")
)

// kindError tags a cause with one of the sentinel kinds above, so callers can
// match the kind with errors.Is while keeping the underlying cause.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.cause }

// DeviceError marks cause as a fatal device failure.
func DeviceError(cause error) error {
	if errors.Is(cause, ErrDeviceError) {
		return cause
	}
	return errors.WithStack(&kindError{kind: ErrDeviceError, cause: cause})
}

// DeviceTimeout marks cause as a recoverable capture timeout.
func DeviceTimeout(cause error) error {
	if errors.Is(cause, ErrDeviceTimeout) {
		return cause
	}
	return errors.WithStack(&kindError{kind: ErrDeviceTimeout, cause: cause})
}

// IsFatal reports whether err ends a capture session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceError)
}
