package jobs

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// Event is the kind of child status change reported by a wait call.
type Event int

const (
	EventNone Event = iota
	EventExited
	EventSignaled
	EventStopped
	EventContinued
)

// Status is a decoded wait status.
type Status struct {
	Pid    int
	Event  Event
	Code   int
	Signal syscall.Signal
}

// Terminated reports whether the process is gone.
func (s Status) Terminated() bool {
	return s.Event == EventExited || s.Event == EventSignaled
}

// Reaper collects child status changes and signals children.
type Reaper interface {
	// Probe reports a pending status change of pid without blocking.
	Probe(pid int) (Status, error)
	// Wait blocks until pid terminates or stops. A negative pid waits for
	// any member of the process group -pid.
	Wait(pid int) (Status, error)
	// Signal sends sig to pid, or to the process group -pid.
	Signal(pid int, sig syscall.Signal) error
}

// SysReaper is the Reaper backed by wait4(2) and kill(2).
type SysReaper struct{}

var _ Reaper = SysReaper{}

func (SysReaper) Probe(pid int) (Status, error) {
	return wait4(pid, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED)
}

func (SysReaper) Wait(pid int) (Status, error) {
	return wait4(pid, unix.WUNTRACED)
}

func (SysReaper) Signal(pid int, sig syscall.Signal) error {
	return unix.Kill(pid, sig)
}

func wait4(pid int, options int) (Status, error) {
	var ws unix.WaitStatus

	for {
		wpid, err := unix.Wait4(pid, &ws, options, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return Status{Pid: pid}, &WaitError{Pid: pid, Err: err}
		}
		if wpid == 0 {
			return Status{Pid: pid, Event: EventNone}, nil
		}
		return decode(wpid, ws), nil
	}
}

func decode(pid int, ws unix.WaitStatus) Status {
	st := Status{Pid: pid}

	switch {
	case ws.Exited():
		st.Event = EventExited
		st.Code = ws.ExitStatus()
	case ws.Signaled():
		st.Event = EventSignaled
		st.Signal = ws.Signal()
	case ws.Stopped():
		st.Event = EventStopped
		st.Signal = ws.StopSignal()
	case ws.Continued():
		st.Event = EventContinued
	}

	return st
}
