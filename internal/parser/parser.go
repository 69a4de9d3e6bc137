// Package parser turns raw input lines into cmdline.Line values.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/anmitsu/go-shlex"

	"jobshell/internal/cmdline"
	"jobshell/internal/slice"
)

// ErrSyntax is wrapped by every error Parse returns.
var ErrSyntax = errors.New("syntax error")

// ContinuationPrompt is written before each continuation line.
const ContinuationPrompt = "> "

func syntaxError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

// Pending reports the quote left open at the end of line, if any, and
// whether the line ends with a continuation backslash.
func Pending(line []byte) (quote byte, continued bool) {
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && (quote == 0 || (quote == '"' && i+1 < len(line) && (line[i+1] == '"' || line[i+1] == '\\'))):
			if i+1 == len(line) {
				return quote, true
			}
			i++
		case (line[i] == '\'' || line[i] == '"') && quote == 0:
			quote = line[i]
		case line[i] == quote:
			quote = 0
		}
	}

	return quote, false
}

// Join appends a continuation line to line the way Read does: a trailing
// backslash outside quotes is dropped, a line break inside quotes is kept.
func Join(line, next []byte) []byte {
	quote, continued := Pending(line)
	if continued && quote != '\'' {
		line = slice.Remove(line, len(line)-1, len(line))
	} else if quote != 0 {
		line = append(line, '\n')
	}

	return append(line, next...)
}

// NeedsMore reports whether line cannot be parsed until another line is read.
func NeedsMore(line []byte) bool {
	quote, continued := Pending(line)
	return quote != 0 || continued
}

// Read reads one logical line from s, following open quotes and trailing
// backslashes onto further lines. The continuation prompt is written to ps2
// when it is not nil. Read returns nil once the input is exhausted.
func Read(s *bufio.Scanner, ps2 io.Writer) []byte {
	var line []byte

	for s.Scan() {
		if line == nil {
			line = append([]byte{}, s.Bytes()...)
		} else {
			line = Join(line, s.Bytes())
		}

		if !NeedsMore(line) {
			return line
		}

		if ps2 != nil {
			fmt.Fprint(ps2, ContinuationPrompt)
		}
	}

	return line
}

// scan returns the raw text of the word starting at id, quotes included,
// and the index of the first byte after it.
func scan(line []byte, id int) (string, int) {
	start := id

	for quote := byte(0); id < len(line) && (quote != 0 || !strings.ContainsRune(" \t|&<>;", rune(line[id]))); id++ {
		switch {
		case line[id] == '\\' && (quote == 0 || (quote == '"' && id+1 < len(line) && (line[id+1] == '"' || line[id+1] == '\\'))):
			if id+1 < len(line) {
				id++
			}
		case (line[id] == '\'' || line[id] == '"') && quote == 0:
			quote = line[id]
		case line[id] == quote:
			quote = 0
		}
	}

	return string(line[start:id]), id
}

// word unquotes the word starting at id.
func word(line []byte, id int) (string, int, error) {
	raw, next := scan(line, id)

	words, err := shlex.Split(raw, true)
	if err != nil {
		return "", next, syntaxError("%v", err)
	}

	switch {
	case len(words) == 0 && strings.ContainsAny(raw, `'"`):
		return "", next, nil
	case len(words) == 0:
		return raw, next, nil
	}

	return strings.Join(words, " "), next, nil
}

func target(line []byte, id int, op string) (string, int, error) {
	id = slice.TrimSpaces(line, id)
	if id == len(line) || strings.ContainsRune("|&<>;", rune(line[id])) {
		return "", id, syntaxError("missing file name after '%s'", op)
	}

	return word(line, id)
}

// Parse parses one logical line. A blank line yields a nil Line and a nil
// error.
func Parse(line []byte) (*cmdline.Line, error) {
	res := &cmdline.Line{}
	var cmd cmdline.Command

	for i := 0; i < len(line); {
		i = slice.TrimSpaces(line, i)
		if i == len(line) {
			break
		}

		if res.Background {
			return nil, syntaxError("unexpected '%c' after '&'", line[i])
		}

		var err error
		switch {
		case line[i] == '&':
			if len(cmd.Args) == 0 {
				return nil, syntaxError("missing command before '&'")
			}

			res.Background = true
			i++
		case line[i] == '|':
			if len(cmd.Args) == 0 {
				return nil, syntaxError("missing command before '|'")
			}
			if res.OutFile != "" || res.ErrFile != "" {
				return nil, syntaxError("output redirection is only allowed on the last command")
			}

			res.Commands = append(res.Commands, cmd)
			cmd = cmdline.Command{}
			i++
		case line[i] == '<':
			if len(res.Commands) > 0 {
				return nil, syntaxError("input redirection is only allowed on the first command")
			}

			res.InFile, i, err = target(line, i+1, "<")
		case line[i] == '>' && i+1 < len(line) && line[i+1] == '>':
			return nil, syntaxError("'>>' is not supported")
		case line[i] == '>':
			res.OutFile, i, err = target(line, i+1, ">")
		case line[i] == '2' && i+1 < len(line) && line[i+1] == '>':
			res.ErrFile, i, err = target(line, i+2, "2>")
		case line[i] == ';':
			return nil, syntaxError("';' is not supported")
		default:
			var w string
			w, i, err = word(line, i)
			cmd.Args = append(cmd.Args, w)
		}

		if err != nil {
			return nil, err
		}
	}

	if len(cmd.Args) == 0 {
		switch {
		case len(res.Commands) > 0:
			return nil, syntaxError("missing command after '|'")
		case res.InFile != "" || res.OutFile != "" || res.ErrFile != "":
			return nil, syntaxError("missing command")
		}
		return nil, nil
	}

	res.Commands = append(res.Commands, cmd)

	return res, nil
}
