package jobs

import (
	"errors"
	"time"
)

// pollInterval paces WaitAll when the processes share the shell's group.
const pollInterval = 10 * time.Millisecond

// Result is the outcome of waiting on a foreground job.
type Result struct {
	// Exits holds the status of every process that terminated.
	Exits []Status
	// Stopped is set when a process stopped before all of them terminated.
	Stopped bool
	// Live holds the processes still alive when Stopped is set.
	Live []Proc
}

// WaitAll blocks until every process in procs has terminated, or until any
// of them stops. With a pgid the whole group is waited on at once; without
// one the processes are probed in turn. A failed wait drops that process.
func WaitAll(r Reaper, pgid int, procs []Proc) (Result, error) {
	live := append([]Proc(nil), procs...)
	if pgid > 0 {
		return waitGroup(r, pgid, live)
	}
	return pollAll(r, live)
}

func waitGroup(r Reaper, pgid int, live []Proc) (Result, error) {
	var res Result

	for len(live) > 0 {
		st, err := r.Wait(-pgid)
		if err != nil {
			return res, err
		}

		i := indexOf(live, st.Pid)
		if i < 0 {
			continue
		}

		switch st.Event {
		case EventStopped:
			res.Stopped = true
			res.Live = live
			return res, nil
		case EventExited, EventSignaled:
			res.Exits = append(res.Exits, st)
			live = append(live[:i], live[i+1:]...)
		}
	}

	return res, nil
}

func pollAll(r Reaper, live []Proc) (Result, error) {
	var res Result
	var errs []error

	for len(live) > 0 {
		changed := false

		for i := 0; i < len(live); i++ {
			st, err := r.Probe(live[i].Pid)
			switch {
			case err != nil:
				errs = append(errs, err)
			case st.Event == EventStopped:
				res.Stopped = true
				res.Live = live
				return res, errors.Join(errs...)
			case st.Terminated():
				res.Exits = append(res.Exits, st)
			default:
				continue
			}

			changed = true
			live = append(live[:i], live[i+1:]...)
			i--
		}

		if !changed && len(live) > 0 {
			time.Sleep(pollInterval)
		}
	}

	return res, errors.Join(errs...)
}

func indexOf(procs []Proc, pid int) int {
	for i, p := range procs {
		if p.Pid == pid {
			return i
		}
	}
	return -1
}
