package capture

import (
	"errors"
	"strings"
)

// ErrorClass separates capture failures the supervisor should re-probe from
// failures that end the cycle.
type ErrorClass int

const (
	// Recoverable means the stream ended with nothing worth keeping; the
	// supervisor re-probes immediately (bounded by the retry ceiling).
	Recoverable ErrorClass = iota
	// Fatal covers everything else, including ambiguous failures. Any
	// captured file is preserved and the supervisor proceeds to cooldown.
	Fatal
)

func (ec ErrorClass) String() string {
	if ec == Recoverable {
		return "recoverable"
	}
	return "fatal"
}

// ErrNoData marks a capture attempt that produced no output at all.
var ErrNoData = errors.New("stream ended with no data captured")

// Error wraps a capture failure with its classification and, when a partial
// file was preserved, its path.
type Error struct {
	Class ErrorClass
	Path  string
	Err   error
}

func (e *Error) Error() string {
	return "capture (" + e.Class.String() + "): " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsRecoverable reports whether the supervisor should return to probing
// without a cooldown.
func IsRecoverable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class == Recoverable
	}
	return false
}

// recoverablePatterns match streamlink output for the channel simply not
// being live (anymore). Everything not matched here is treated as fatal:
// a mid-stream network drop or an unknown tool failure should not hot-loop
// the probe cycle.
var recoverablePatterns = []string{
	"no playable streams found",
	"stream ended",
	"could not find stream",
	"error: no streams",
}

func classify(err error) ErrorClass {
	if err == nil {
		return Fatal
	}
	if errors.Is(err, ErrNoData) {
		return Recoverable
	}
	lower := strings.ToLower(err.Error())
	for _, pattern := range recoverablePatterns {
		if strings.Contains(lower, pattern) {
			return Recoverable
		}
	}
	return Fatal
}
