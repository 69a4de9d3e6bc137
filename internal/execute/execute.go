// Package execute builds pipelines: it allocates the pipe set, wires each
// stage's standard streams and starts one process per stage.
package execute

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"jobshell/internal/cmdline"
	"jobshell/internal/jobs"
	"jobshell/internal/redirect"
	"jobshell/internal/sigpolicy"
)

// ErrEmptyCommand is reported for a stage whose program name is empty.
var ErrEmptyCommand = errors.New("empty command")

// ExecError reports a program that could not be found or executed.
type ExecError struct {
	Program string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %v", e.Program, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// FailedStatus is the exit status recorded for a stage that never started.
const FailedStatus = 1

// Stage is one pipeline stage after launch. Pid is 0 when Err is set.
type Stage struct {
	Args []string
	Pid  int
	Err  error
}

// Pipeline is a launched command line.
type Pipeline struct {
	Label  string
	Stages []Stage
	// Pgid is the pipeline's process group, 0 without process groups.
	Pgid int
}

// Procs returns the stages that were started.
func (p *Pipeline) Procs() []jobs.Proc {
	var procs []jobs.Proc
	for _, st := range p.Stages {
		if st.Err == nil {
			procs = append(procs, jobs.Proc{Pid: st.Pid, Name: strings.Join(st.Args, " ")})
		}
	}
	return procs
}

// Failed returns the stages that could not be started.
func (p *Pipeline) Failed() []Stage {
	var failed []Stage
	for _, st := range p.Stages {
		if st.Err != nil {
			failed = append(failed, st)
		}
	}
	return failed
}

// Job returns the pipeline as a running job identified by its last started
// process, or nil when no stage started.
func (p *Pipeline) Job() *jobs.Job {
	procs := p.Procs()
	if len(procs) == 0 {
		return nil
	}

	return &jobs.Job{
		Pid:   procs[len(procs)-1].Pid,
		Pgid:  p.Pgid,
		Procs: procs,
		Label: p.Label,
		State: jobs.Running,
	}
}

// Launcher starts pipelines with the shell's standard streams as defaults.
type Launcher struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	Policy *sigpolicy.Policy
	Log    *log.Logger

	// Report receives the error of every stage that fails to start.
	Report func(error)
	// LookPath resolves program names; exec.LookPath when nil.
	LookPath func(string) (string, error)
}

func (l *Launcher) logger() *log.Logger {
	if l.Log == nil {
		l.Log = log.New(io.Discard, "", 0)
	}
	return l.Log
}

func (l *Launcher) policy() *sigpolicy.Policy {
	if l.Policy == nil {
		l.Policy = sigpolicy.New(false, nil, l.logger())
	}
	return l.Policy
}

// SignalPolicy returns the policy children are started under.
func (l *Launcher) SignalPolicy() *sigpolicy.Policy {
	return l.policy()
}

func (l *Launcher) report(err error) {
	if l.Report != nil {
		l.Report(err)
		return
	}
	fmt.Fprintf(l.Stderr, "jobshell: %v\n", err)
}

func (l *Launcher) lookPath(name string) (string, error) {
	if l.LookPath != nil {
		return l.LookPath(name)
	}
	return exec.LookPath(name)
}

// Start launches every stage of line without waiting for any of them. The
// pipe set is allocated before the first fork and the parent's copies are
// closed once every stage is started. A stage that fails to start is
// reported and recorded in its Stage; the others still run.
func (l *Launcher) Start(line *cmdline.Line) (*Pipeline, error) {
	n := len(line.Commands)
	if n == 0 {
		return nil, ErrEmptyCommand
	}

	ps, err := newPipeSet(n)
	if err != nil {
		return nil, err
	}
	defer ps.Close()

	p := &Pipeline{Label: line.Label(), Stages: make([]Stage, n)}
	for i, cmd := range line.Commands {
		st := &p.Stages[i]
		st.Args = cmd.Args

		st.Pid, st.Err = l.launch(line, ps, i, p.Pgid)
		if st.Err != nil {
			l.logger().Printf("stage %d %q: %v", i, cmd.Args, st.Err)
			l.report(st.Err)
			continue
		}

		if p.Pgid == 0 && l.policy().Groups() {
			p.Pgid = st.Pid
		}
		l.logger().Printf("stage %d %q: pid %d pgid %d", i, cmd.Args, st.Pid, p.Pgid)
	}

	return p, nil
}

func stageTargets(line *cmdline.Line, i int) []redirect.Target {
	last := len(line.Commands) - 1

	var targets []redirect.Target
	if i == 0 && line.InFile != "" {
		targets = append(targets, redirect.Target{Path: line.InFile, Role: redirect.Input})
	}
	if i == last && line.OutFile != "" {
		targets = append(targets, redirect.Target{Path: line.OutFile, Role: redirect.Output})
	}
	if i == last && line.ErrFile != "" {
		targets = append(targets, redirect.Target{Path: line.ErrFile, Role: redirect.Error})
	}
	return targets
}

// launch wires and starts stage i. Redirections are opened in the fixed
// order input, output, error, and a failure stops the stage before any
// program is executed.
func (l *Launcher) launch(line *cmdline.Line, ps pipeSet, i int, pgid int) (int, error) {
	rf, err := redirect.Apply(stageTargets(line, i)...)
	if err != nil {
		return 0, err
	}
	defer rf.Close()

	files := []uintptr{l.Stdin.Fd(), l.Stdout.Fd(), l.Stderr.Fd()}
	in, out := ps.ends(i)
	if in >= 0 {
		files[0] = uintptr(in)
	}
	if out >= 0 {
		files[1] = uintptr(out)
	}
	for _, role := range []redirect.Role{redirect.Input, redirect.Output, redirect.Error} {
		if f := rf.Get(role); f != nil {
			files[role] = f.Fd()
		}
	}

	attr := l.policy().Child(pgid, !line.Background)

	return l.spawn(line.Commands[i].Args, files, attr)
}

func (l *Launcher) spawn(args []string, files []uintptr, attr *syscall.SysProcAttr) (int, error) {
	if len(args) == 0 || args[0] == "" {
		return 0, ErrEmptyCommand
	}

	path, err := l.lookPath(args[0])
	if err != nil {
		return 0, &ExecError{Program: args[0], Err: cause(err)}
	}

	pid, err := syscall.ForkExec(path, args, &syscall.ProcAttr{
		Env:   os.Environ(),
		Files: files,
		Sys:   attr,
	})
	if err != nil {
		return 0, &ExecError{Program: args[0], Err: cause(err)}
	}

	return pid, nil
}

// cause strips the wrappers exec.LookPath and os add around errno values.
func cause(err error) error {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		err = execErr.Err
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Err
	}
	return err
}
