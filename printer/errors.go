package printer

import (
	"errors"
	"fmt"

	imgInternal "github.com/AlexStarov/escpos-dotimage/image"
)

// ValidationError is returned before anything is written.
type ValidationError = imgInternal.ValidationError

var (
	// ErrJobAborted is returned by every operation after a transport failure:
	// the device may be in the middle of a frame and the printer must be
	// reopened.
	ErrJobAborted = errors.New("print job aborted by an earlier transport failure")

	// ErrNoOutEndpoint means the claimed device has nothing to write to.
	ErrNoOutEndpoint = errors.New("no writable endpoint on device")
)

// ConfigurationError means the device cannot be used at all. It is never retried.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError wraps a failed or cancelled write. Frame is the index of the
// frame within Op that failed.
type TransportError struct {
	Op    string
	Frame int
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s frame %d: %v", e.Op, e.Frame, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
