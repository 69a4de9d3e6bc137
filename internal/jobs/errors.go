package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrTableFull is returned by Insert when the table is at capacity.
	ErrTableFull = errors.New("job table full")
	// ErrJobTerminated is returned when a job selected for fg or bg has
	// already been observed done.
	ErrJobTerminated = errors.New("job has terminated")
)

// NoSuchJobError reports a slot outside [1, Len()].
type NoSuchJobError struct {
	Slot int
}

func (e *NoSuchJobError) Error() string {
	if e.Slot == 0 {
		return "no such job: current"
	}
	return fmt.Sprintf("no such job: %d", e.Slot)
}

// WaitError reports a failed wait call.
type WaitError struct {
	Pid int
	Err error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait for %d: %v", e.Pid, e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }
