package shell

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"jobshell/internal/jobs"
)

type builtin func(d *Dispatcher, args []string) error

func builtins() map[string]builtin {
	return map[string]builtin{
		"cd":   cd,
		"pwd":  pwd,
		"jobs": listJobs,
		"fg":   fg,
		"bg":   bg,
		"exit": exit,
	}
}

// DirectoryError reports a failed cd.
type DirectoryError struct {
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

var errTooManyArgs = errors.New("too many arguments")

func cd(_ *Dispatcher, args []string) error {
	var dir string
	switch len(args) {
	case 1:
		dir = os.Getenv("HOME")
		if dir == "" {
			return &DirectoryError{Path: "~", Err: errors.New("HOME not set")}
		}
	case 2:
		dir = args[1]
	default:
		return errTooManyArgs
	}

	if err := os.Chdir(dir); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			err = pathErr.Err
		}
		return &DirectoryError{Path: dir, Err: err}
	}
	return nil
}

func pwd(d *Dispatcher, _ []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	fmt.Fprintln(d.out, dir)
	return nil
}

func listJobs(d *Dispatcher, args []string) error {
	opts := getopt.New()
	long := opts.Bool('l', "also list every process of each job")
	pidsOnly := opts.Bool('p', "show process IDs only")
	runningOnly := opts.Bool('r', "show running jobs only")
	stoppedOnly := opts.Bool('s', "show stopped jobs only")

	if err := opts.Getopt(args, nil); err != nil {
		return err
	}
	if opts.NArgs() > 0 {
		return errTooManyArgs
	}

	// Taken before List, which drops finished processes and jobs.
	procs := make(map[int][]jobs.Proc, d.jobs.Len())
	if *long {
		for slot := 1; slot <= d.jobs.Len(); slot++ {
			if job, err := d.jobs.Job(slot); err == nil {
				procs[slot] = append([]jobs.Proc(nil), job.Procs...)
			}
		}
	}

	entries, err := d.jobs.List()
	for _, e := range entries {
		switch {
		case *runningOnly && e.State != jobs.Running:
		case *stoppedOnly && e.State != jobs.Stopped:
		case *pidsOnly:
			fmt.Fprintln(d.out, e.Pid)
		default:
			fmt.Fprintln(d.out, e)
			for _, p := range procs[e.Slot] {
				fmt.Fprintf(d.out, "    %d %s\n", p.Pid, p.Name)
			}
		}
	}
	return err
}

// slotArg parses the optional job argument of fg and bg: absent is 0, the
// highest slot, and a leading '%' is accepted.
func slotArg(args []string) (int, error) {
	switch len(args) {
	case 1:
		return 0, nil
	case 2:
	default:
		return 0, errTooManyArgs
	}

	slot, err := strconv.Atoi(strings.TrimPrefix(args[1], "%"))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid job", args[1])
	}
	return slot, nil
}

func fg(d *Dispatcher, args []string) error {
	slot, err := slotArg(args)
	if err != nil {
		return err
	}

	policy := d.launcher.SignalPolicy()
	job, err := d.jobs.Promote(slot, func(j *jobs.Job) {
		fmt.Fprintln(d.out, j.Label)
		policy.Give(j.Pgid)
	})
	switch {
	case job == nil:
		return err
	case errors.Is(err, jobs.ErrJobTerminated):
		return err
	case err != nil:
		d.Report(fmt.Errorf("fg: %w", err))
	}

	d.foreground(job)
	return nil
}

func bg(d *Dispatcher, args []string) error {
	slot, err := slotArg(args)
	if err != nil {
		return err
	}

	entry, err := d.jobs.Resume(slot)
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "%s &\n", entry)
	return nil
}

func exit(d *Dispatcher, _ []string) error {
	d.exit(0)
	return nil
}
