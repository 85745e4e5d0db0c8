package reactor

import "errors"

// Sentinel errors surfaced across the control object and facade.
var (
	// ErrCapacityExceeded is returned when a slab (listeners, connections,
	// or timers) is full at insert time.
	ErrCapacityExceeded = errors.New("reactor: capacity exceeded")

	// ErrUnknownToken is returned when an operation names a Token that
	// does not index a live resource.
	ErrUnknownToken = errors.New("reactor: unknown token")

	// ErrTimerNotArmed names the condition of clearing a timer that is not
	// currently armed. TimerWheel.Clear and the Clear command treat that
	// case as a no-op and do not return this error.
	ErrTimerNotArmed = errors.New("reactor: timer not armed")

	// ErrClosed is returned when an operation is attempted on a
	// connection or reactor that has already transitioned to Closed /
	// shut down.
	ErrClosed = errors.New("reactor: closed")

	// ErrNotifierFailed is the sentinel for a failure of the notifier
	// itself (as opposed to a single connection's socket erroring). Run
	// does not return it: Run returns the context's error, and a failed
	// Reregister after a dispatch is ignored.
	ErrNotifierFailed = errors.New("reactor: notifier failed")

	// ErrWouldBlock names the "no data/space right now" condition. The
	// write path detects that condition from a write-deadline timeout and
	// does not produce this value.
	ErrWouldBlock = errors.New("reactor: would block")
)
