package redirect

import (
	"fmt"
	"os"
)

// Perm is the mode of files created for output and error redirection.
const Perm = 0o664

// Role names the standard stream a target is bound to.
type Role int

const (
	Input Role = iota
	Output
	Error
)

func (r Role) String() string {
	switch r {
	case Input:
		return "input"
	case Output:
		return "output"
	case Error:
		return "error"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// OpenError reports a redirection target that could not be opened.
type OpenError struct {
	Path string
	Role Role
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("cannot open %s file %s: %v", e.Role, e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// Open opens path for the given role: read-only for Input, created and
// truncated for Output and Error.
func Open(path string, role Role) (*os.File, error) {
	var f *os.File
	var err error

	if role == Input {
		f, err = os.Open(path)
	} else {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, Perm)
	}
	if err != nil {
		if pe, ok := err.(*os.PathError); ok {
			err = pe.Err
		}
		return nil, &OpenError{Path: path, Role: role, Err: err}
	}

	return f, nil
}

type Target struct {
	Path string
	Role Role
}

// Files holds the opened targets of one stage, indexed by Role.
type Files struct {
	files [3]*os.File
}

// Apply opens the targets in order. It stops at the first failure, closing
// whatever it had opened, so a stage never runs partially redirected.
func Apply(targets ...Target) (*Files, error) {
	fs := &Files{}

	for _, t := range targets {
		f, err := Open(t.Path, t.Role)
		if err != nil {
			fs.Close()
			return nil, err
		}
		if old := fs.files[t.Role]; old != nil {
			_ = old.Close()
		}
		fs.files[t.Role] = f
	}

	return fs, nil
}

func (fs *Files) Get(role Role) *os.File {
	if fs == nil {
		return nil
	}
	return fs.files[role]
}

// Close releases the parent's copies of the opened files.
func (fs *Files) Close() {
	if fs == nil {
		return
	}

	for i, f := range fs.files {
		if f != nil {
			_ = f.Close()
			fs.files[i] = nil
		}
	}
}
