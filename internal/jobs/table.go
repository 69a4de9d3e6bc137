// Package jobs tracks background and stopped pipelines and applies the
// job-control state machine to them.
package jobs

import (
	"errors"
	"fmt"
	"io"
	"log"
	"syscall"

	"jobshell/internal/slice"
)

// Table is the ordered list of jobs. Slots are 1-based and contiguous:
// removing a job shifts every later slot down by one. A limit of 0 means
// the table grows without bound.
type Table struct {
	jobs   []*Job
	limit  int
	reaper Reaper
	log    *log.Logger
}

func NewTable(reaper Reaper, limit int, logger *log.Logger) *Table {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Table{
		limit:  limit,
		reaper: reaper,
		log:    logger,
	}
}

func (t *Table) Len() int {
	return len(t.jobs)
}

// Full reports whether Insert would fail with ErrTableFull.
func (t *Table) Full() bool {
	return t.limit > 0 && len(t.jobs) >= t.limit
}

// Insert appends job at the next slot and returns that slot.
func (t *Table) Insert(job *Job) (int, error) {
	if t.Full() {
		return 0, fmt.Errorf("%w (%d jobs)", ErrTableFull, t.limit)
	}

	t.jobs = append(t.jobs, job)
	t.log.Printf("job [%d] %d %s: %s", len(t.jobs), job.Pid, job.State, job.Label)

	return len(t.jobs), nil
}

// index maps a slot to its position; slot 0 selects the highest slot.
func (t *Table) index(slot int) (int, error) {
	n := slot
	if n == 0 {
		n = len(t.jobs)
	}
	if n < 1 || n > len(t.jobs) {
		return 0, &NoSuchJobError{Slot: slot}
	}
	return n - 1, nil
}

// Job returns the job at slot without changing the table.
func (t *Table) Job(slot int) (*Job, error) {
	idx, err := t.index(slot)
	if err != nil {
		return nil, err
	}
	return t.jobs[idx], nil
}

// Remove deletes the job at slot and compacts the slots above it.
func (t *Table) Remove(slot int) (*Job, error) {
	idx, err := t.index(slot)
	if err != nil {
		return nil, err
	}

	job := t.jobs[idx]
	t.jobs = slice.Remove(t.jobs, idx, idx+1)

	return job, nil
}

// Refresh probes every job without blocking and updates its state.
func (t *Table) Refresh() error {
	var errs []error

	for _, job := range t.jobs {
		if err := t.refresh(job); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (t *Table) refresh(job *Job) error {
	if job.State == Done {
		return nil
	}

	var errs []error
	var stopped, continued bool
	live := job.Procs[:0]

	for _, p := range job.Procs {
		st, err := t.reaper.Probe(p.Pid)
		if err != nil {
			// A process that cannot be waited on is never reported again.
			errs = append(errs, err)
			continue
		}

		switch st.Event {
		case EventExited, EventSignaled:
			continue
		case EventStopped:
			stopped = true
		case EventContinued:
			continued = true
		}
		live = append(live, p)
	}
	job.Procs = live

	prev := job.State
	switch {
	case len(live) == 0:
		job.State = Done
	case stopped:
		job.State = Stopped
	case continued:
		job.State = Running
	}
	if job.State != prev {
		t.log.Printf("job %d: %s -> %s", job.Pid, prev, job.State)
	}

	return errors.Join(errs...)
}

// List refreshes the table and returns one entry per job. Jobs found done
// are listed once, at their current slot, and then removed.
func (t *Table) List() ([]Entry, error) {
	err := t.Refresh()

	entries := make([]Entry, 0, len(t.jobs))
	for i, job := range t.jobs {
		entries = append(entries, Entry{Slot: i + 1, Pid: job.Pid, State: job.State, Label: job.Label})
	}
	t.compact()

	return entries, err
}

// Finished refreshes the table and returns, then removes, only the jobs
// found done.
func (t *Table) Finished() ([]Entry, error) {
	err := t.Refresh()

	var entries []Entry
	for i, job := range t.jobs {
		if job.State == Done {
			entries = append(entries, Entry{Slot: i + 1, Pid: job.Pid, State: job.State, Label: job.Label})
		}
	}
	t.compact()

	return entries, err
}

func (t *Table) compact() {
	for i := len(t.jobs) - 1; i >= 0; i-- {
		if t.jobs[i].State == Done {
			t.jobs = slice.Remove(t.jobs, i, i+1)
		}
	}
}

// Promote takes the job at slot (0 for the highest) out of the table and
// sends it SIGCONT, leaving the caller to wait on it in the foreground.
// handoff, when not nil, runs between the removal and the SIGCONT. A job
// already done is removed and reported with ErrJobTerminated. On a
// NoSuchJobError the table is unchanged.
func (t *Table) Promote(slot int, handoff func(*Job)) (*Job, error) {
	idx, err := t.index(slot)
	if err != nil {
		return nil, err
	}

	job := t.jobs[idx]
	probeErr := t.refresh(job)
	t.jobs = slice.Remove(t.jobs, idx, idx+1)

	if job.State == Done {
		return job, errors.Join(ErrJobTerminated, probeErr)
	}

	if handoff != nil {
		handoff(job)
	}

	job.State = Running
	if err := job.Signal(t.reaper, syscall.SIGCONT); err != nil {
		return job, fmt.Errorf("continue job %d: %w", job.Pid, err)
	}

	return job, probeErr
}

// Resume sends SIGCONT to the job at slot and leaves it in the table as
// running.
func (t *Table) Resume(slot int) (Entry, error) {
	idx, err := t.index(slot)
	if err != nil {
		return Entry{}, err
	}

	job := t.jobs[idx]
	entry := Entry{Slot: idx + 1, Pid: job.Pid, Label: job.Label}

	if err := t.refresh(job); err != nil {
		t.log.Printf("job %d: %v", job.Pid, err)
	}
	if job.State == Done {
		t.jobs = slice.Remove(t.jobs, idx, idx+1)
		entry.State = Done
		return entry, ErrJobTerminated
	}

	if err := job.Signal(t.reaper, syscall.SIGCONT); err != nil {
		entry.State = job.State
		return entry, fmt.Errorf("continue job %d: %w", job.Pid, err)
	}
	job.State = Running
	entry.State = Running

	return entry, nil
}
