package bridge

import "errors"

var (
	// ErrNotCallable is returned by Call when the target is not a function
	// reference. Invoke treats the same condition as a silent no-op.
	ErrNotCallable = errors.New("bridge: value is not a function reference")

	// ErrStaleFunction is returned when a function reference points at a
	// function-table slot that has since been reused.
	ErrStaleFunction = errors.New("bridge: stale function reference")

	// ErrAbandoned is returned by Call when the pending call was cancelled or
	// timed out before the script reported a result.
	ErrAbandoned = errors.New("bridge: call abandoned before result")

	// ErrWouldDeadlock is returned by Call when invoked from the script
	// runtime's own goroutine, where the result could never be delivered.
	ErrWouldDeadlock = errors.New("bridge: blocking call from the script loop would deadlock")
)
