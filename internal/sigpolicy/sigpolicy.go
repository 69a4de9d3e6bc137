// Package sigpolicy holds the shell's signal discipline: which signals the
// shell shields itself from, the attributes every child is started with,
// and the hand-off of the terminal's foreground process group.
package sigpolicy

import (
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// Shielded are the signals the shell survives while its children do not.
var Shielded = []os.Signal{syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTSTP}

// Policy is applied at two points: Install once at startup, Child for
// every process the shell starts.
type Policy struct {
	groups bool
	tty    *Terminal
	log    *log.Logger

	ch   chan os.Signal
	done chan struct{}
}

// New returns a policy. With groups set every pipeline gets its own process
// group, and tty, when not nil, is handed to foreground groups.
func New(groups bool, tty *Terminal, logger *log.Logger) *Policy {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if !groups {
		tty = nil
	}

	return &Policy{
		groups: groups,
		tty:    tty,
		log:    logger,
	}
}

func (p *Policy) Groups() bool {
	return p.groups
}

func (p *Policy) Terminal() *Terminal {
	return p.tty
}

// Install shields the shell from the Shielded signals. They are caught and
// discarded, not ignored: the runtime puts caught signals back to SIG_DFL in
// a forked child, whereas SIG_IGN would be inherited across exec.
func (p *Policy) Install() {
	if p.ch != nil {
		return
	}

	p.ch = make(chan os.Signal, 1)
	p.done = make(chan struct{})
	signal.Notify(p.ch, Shielded...)

	go func(ch <-chan os.Signal, done <-chan struct{}) {
		for {
			select {
			case sig := <-ch:
				p.log.Printf("shell received %v, left to the foreground job", sig)
			case <-done:
				return
			}
		}
	}(p.ch, p.done)
}

// Uninstall restores the default dispositions.
func (p *Policy) Uninstall() {
	if p.ch == nil {
		return
	}

	signal.Stop(p.ch)
	close(p.done)
	p.ch, p.done = nil, nil
}

// Child returns the attributes for a child process. pgid is the group to
// join, 0 to lead a new one; foreground asks for the new group to be given
// the terminal.
func (p *Policy) Child(pgid int, foreground bool) *syscall.SysProcAttr {
	if !p.groups {
		return &syscall.SysProcAttr{}
	}

	attr := &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
	if pgid == 0 && foreground && p.tty != nil {
		attr.Foreground = true
		attr.Ctty = p.tty.Fd()
	}

	return attr
}

// Give hands the terminal to pgid when job control owns one.
func (p *Policy) Give(pgid int) {
	if pgid <= 0 {
		return
	}
	if err := p.tty.Give(pgid); err != nil {
		p.log.Printf("give terminal to %d: %v", pgid, err)
	}
}

// Reclaim takes the terminal back for the shell.
func (p *Policy) Reclaim() {
	if err := p.tty.Reclaim(); err != nil {
		p.log.Printf("reclaim terminal: %v", err)
	}
}
