// Package shell dispatches parsed command lines to the built-ins or to the
// pipeline launcher, and owns the foreground side of job control.
package shell

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"jobshell/internal/cmdline"
	"jobshell/internal/execute"
	"jobshell/internal/jobs"
)

// Dispatcher runs command lines against a job table it owns.
type Dispatcher struct {
	jobs     *jobs.Table
	launcher *execute.Launcher
	reaper   jobs.Reaper

	out     io.Writer
	errOut  io.Writer
	log     *log.Logger
	diagFmt *color.Color
	exit    func(int)

	builtins map[string]builtin
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) { d.log = logger }
}

// WithColor turns coloured diagnostics on or off.
func WithColor(enabled bool) Option {
	return func(d *Dispatcher) {
		if enabled {
			d.diagFmt.EnableColor()
		} else {
			d.diagFmt.DisableColor()
		}
	}
}

// WithExit replaces os.Exit as the way the exit built-in ends the shell.
func WithExit(exit func(int)) Option {
	return func(d *Dispatcher) { d.exit = exit }
}

// WithReaper replaces the wait4-based reaper used for foreground waits.
func WithReaper(r jobs.Reaper) Option {
	return func(d *Dispatcher) { d.reaper = r }
}

func New(table *jobs.Table, launcher *execute.Launcher, out, errOut io.Writer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		jobs:     table,
		launcher: launcher,
		reaper:   jobs.SysReaper{},
		out:      out,
		errOut:   errOut,
		log:      log.New(io.Discard, "", 0),
		diagFmt:  color.New(color.FgRed, color.Bold),
		exit:     os.Exit,
		builtins: builtins(),
	}
	d.diagFmt.DisableColor()

	for _, opt := range opts {
		opt(d)
	}

	if launcher.Report == nil {
		launcher.Report = d.Report
	}

	return d
}

func (d *Dispatcher) Jobs() *jobs.Table {
	return d.jobs
}

// Report prints err as a one-line diagnostic on the error stream.
func (d *Dispatcher) Report(err error) {
	fmt.Fprintln(d.errOut, d.diagFmt.Sprintf("jobshell: %v", err))
}

// Dispatch runs one parsed line. A nil line is a no-op.
func (d *Dispatcher) Dispatch(line *cmdline.Line) {
	if line == nil || len(line.Commands) == 0 {
		return
	}
	line.Normalize()

	name := line.Builtin()
	if b, ok := d.builtins[name]; ok {
		d.log.Printf("builtin %q", line.Commands[0].Args)
		if err := b(d, line.Commands[0].Args); err != nil {
			d.Report(fmt.Errorf("%s: %w", name, err))
		}
		return
	}

	d.run(line)
}

// Notify reports and forgets the background jobs found done.
func (d *Dispatcher) Notify() {
	entries, err := d.jobs.Finished()
	if err != nil {
		d.Report(err)
	}
	for _, e := range entries {
		fmt.Fprintln(d.out, e)
	}
}

func (d *Dispatcher) run(line *cmdline.Line) {
	if line.Background && d.jobs.Full() {
		d.Report(fmt.Errorf("%s: %w", line.Label(), jobs.ErrTableFull))
		return
	}

	p, err := d.launcher.Start(line)
	if err != nil {
		d.Report(err)
		return
	}

	job := p.Job()
	switch {
	case job == nil:
	case line.Background:
		slot, err := d.jobs.Insert(job)
		if err != nil {
			d.Report(err)
			return
		}
		fmt.Fprintf(d.out, "[%d] %d\n", slot, job.Pid)
		return
	default:
		d.foreground(job)
	}

	if !line.Background {
		for _, st := range p.Failed() {
			d.Report(fmt.Errorf("%s: exit status %d", strings.Join(st.Args, " "), execute.FailedStatus))
		}
	}
}

// foreground waits for job. A job that stops is moved to the table; when
// the table is full it is continued and waited on again instead.
func (d *Dispatcher) foreground(job *jobs.Job) {
	policy := d.launcher.SignalPolicy()

	for {
		names := make(map[int]string, len(job.Procs))
		for _, p := range job.Procs {
			names[p.Pid] = p.Name
		}

		res, err := jobs.WaitAll(d.reaper, job.Pgid, job.Procs)
		policy.Reclaim()
		if err != nil {
			d.Report(err)
		}
		d.reportExits(names, res.Exits)

		if !res.Stopped {
			return
		}

		job.Procs = res.Live
		job.State = jobs.Stopped
		slot, err := d.jobs.Insert(job)
		if err == nil {
			fmt.Fprintln(d.out)
			fmt.Fprintln(d.out, jobs.Entry{Slot: slot, Pid: job.Pid, State: job.State, Label: job.Label})
			return
		}

		d.Report(err)
		policy.Give(job.Pgid)
		if err := job.Signal(d.reaper, syscall.SIGCONT); err != nil {
			d.Report(err)
			return
		}
		job.State = jobs.Running
	}
}

func (d *Dispatcher) reportExits(names map[int]string, exits []jobs.Status) {
	for _, st := range exits {
		d.log.Printf("pid %d: event %d code %d signal %v", st.Pid, st.Event, st.Code, st.Signal)

		switch {
		case st.Event == jobs.EventExited && st.Code != 0:
			d.Report(fmt.Errorf("%s: exit status %d", names[st.Pid], st.Code))
		case st.Event == jobs.EventSignaled && st.Signal != syscall.SIGINT && st.Signal != syscall.SIGPIPE:
			d.Report(fmt.Errorf("%s: %v", names[st.Pid], st.Signal))
		}
	}
}
