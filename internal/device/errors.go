package device

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnreachable covers transport failures: refused connections, timeouts,
	// and non-success answers to read requests.
	ErrUnreachable = errors.New("device: not reachable")
	// ErrRejected is returned when the device answered a write with a non-success status.
	ErrRejected = errors.New("device: request rejected")
	// ErrBadResponse is returned when a read body cannot be interpreted.
	ErrBadResponse = errors.New("device: malformed response")
)

// Error wraps one of the sentinel errors with the failing operation.
type Error struct {
	Sentinel error
	Op       string
	Status   int
	Body     string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Sentinel
}

// IsUnreachable reports whether err means the device could not be talked to.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrBadResponse)
}

// IsRejected reports whether the device refused a write.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
