package jobs

import (
	"fmt"
	"syscall"
)

// State is a job's lifecycle state.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Done:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Proc is one live process of a job.
type Proc struct {
	Pid  int
	Name string
}

// Job is a pipeline tracked by the Table. Pid is the last launched stage
// and identifies the job to the user; Procs holds every stage not yet
// reaped. Pgid is 0 when the job shares the shell's process group.
type Job struct {
	Pid   int
	Pgid  int
	Procs []Proc
	Label string
	State State
}

// Signal delivers sig to the whole job: its process group when it has one,
// otherwise each live process.
func (j *Job) Signal(r Reaper, sig syscall.Signal) error {
	if j.Pgid > 0 {
		return r.Signal(-j.Pgid, sig)
	}

	var firstErr error
	for _, p := range j.Procs {
		if err := r.Signal(p.Pid, sig); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Entry is one line of a job listing.
type Entry struct {
	Slot  int
	Pid   int
	State State
	Label string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%d] %d %s %s", e.Slot, e.Pid, e.State, e.Label)
}
