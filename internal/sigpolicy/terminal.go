package sigpolicy

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal is the controlling terminal the shell shares with its
// foreground jobs. A nil *Terminal is valid and does nothing.
type Terminal struct {
	fd   int
	pgid int
}

// NewTerminal returns the terminal behind f, or nil when f is not one.
func NewTerminal(f *os.File) *Terminal {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}

	return &Terminal{fd: fd, pgid: unix.Getpgrp()}
}

func (t *Terminal) Fd() int {
	if t == nil {
		return -1
	}
	return t.fd
}

func (t *Terminal) Give(pgid int) error {
	if t == nil {
		return nil
	}
	return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid)
}

// Reclaim makes the shell's group the foreground group again. The shell
// is in the background at that point, so SIGTTOU is ignored for the call.
func (t *Terminal) Reclaim() error {
	if t == nil {
		return nil
	}

	signal.Ignore(syscall.SIGTTOU)
	defer signal.Reset(syscall.SIGTTOU)

	return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, t.pgid)
}
