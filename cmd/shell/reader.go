package main

import (
	"bufio"
	"io"

	"github.com/abiosoft/readline"

	"jobshell/internal/config"
	"jobshell/internal/parser"
	"jobshell/internal/prompt"
)

// lineReader yields logical command lines, continuation already joined.
type lineReader interface {
	ReadLine() ([]byte, error)
	Close() error
}

type scriptReader struct {
	s *bufio.Scanner
}

func newScriptReader(r io.Reader) *scriptReader {
	return &scriptReader{s: bufio.NewScanner(r)}
}

func (r *scriptReader) ReadLine() ([]byte, error) {
	line := parser.Read(r.s, nil)
	if line == nil {
		if err := r.s.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return line, nil
}

func (r *scriptReader) Close() error { return nil }

type interactiveReader struct {
	rl     *readline.Instance
	format string
}

func newInteractiveReader(cfg *config.Configuration) (*interactiveReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile: cfg.HistoryFile,
	})
	if err != nil {
		return nil, err
	}

	return &interactiveReader{rl: rl, format: cfg.Prompt}, nil
}

func (r *interactiveReader) ReadLine() ([]byte, error) {
	var line []byte
	r.rl.SetPrompt(prompt.Render(r.format, prompt.Current()))

	for {
		text, err := r.rl.Readline()
		switch {
		case err == readline.ErrInterrupt:
			// ^C abandons the line being typed.
			return []byte{}, nil
		case err == io.EOF && line != nil:
			return line, nil
		case err != nil:
			return nil, err
		}

		if line == nil {
			line = []byte(text)
		} else {
			line = parser.Join(line, []byte(text))
		}
		if !parser.NeedsMore(line) {
			return line, nil
		}

		r.rl.SetPrompt(parser.ContinuationPrompt)
	}
}

func (r *interactiveReader) Close() error {
	return r.rl.Close()
}
