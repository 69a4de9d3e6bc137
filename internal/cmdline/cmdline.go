// Package cmdline holds the parsed form of one input line: the pipeline
// stages, their redirection targets and the background flag.
package cmdline

import "strings"

// BackgroundMarker is the trailing token that requests background execution.
const BackgroundMarker = "&"

// Command is one pipeline stage.
type Command struct {
	Args []string
}

func (c Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// Line is a parsed command line. InFile applies to the first stage,
// OutFile and ErrFile to the last one.
type Line struct {
	Commands []Command
	InFile   string
	OutFile  string
	ErrFile  string

	Background bool
}

// Label joins the stage arguments with single spaces and the stages with
// " | ", giving the text shown for the line in job listings.
func (l *Line) Label() string {
	var b strings.Builder

	for i, cmd := range l.Commands {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(strings.Join(cmd.Args, " "))
	}

	return b.String()
}

// Normalize strips a trailing background marker left in the final stage's
// arguments and records it in Background instead.
func (l *Line) Normalize() {
	if len(l.Commands) == 0 {
		return
	}

	last := &l.Commands[len(l.Commands)-1]
	if n := len(last.Args); n > 0 && last.Args[n-1] == BackgroundMarker {
		last.Args = last.Args[:n-1]
		l.Background = true
	}
}

// Builtin reports the built-in name of a single-stage line, if any.
func (l *Line) Builtin() string {
	if len(l.Commands) != 1 {
		return ""
	}
	return l.Commands[0].Name()
}
