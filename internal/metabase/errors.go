package metabase

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the platform reports a missing entity.
var ErrNotFound = errors.New("entity not found")

// RemoteError is any failure of a remote call. Transport errors and 5xx
// responses are transient and worth retrying; 4xx responses are not.
type RemoteError struct {
	Op     string
	Status int // 0 for transport-level failures
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is a transient remote failure.
func (e *RemoteError) Retryable() bool {
	return e.Status == 0 || e.Status >= 500
}

// IsRetryable reports whether err is a transient remote failure.
func IsRetryable(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return false
}
