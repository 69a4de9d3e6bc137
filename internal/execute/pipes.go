package execute

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pipeSet holds the n-1 pipes of an n-stage pipeline as (read, write)
// descriptor pairs. Every end is close-on-exec, so a child keeps only the
// ends dup'ed onto its standard streams once its image is replaced.
type pipeSet [][2]int

func newPipeSet(stages int) (pipeSet, error) {
	var ps pipeSet

	for i := 0; i < stages-1; i++ {
		var fds [2]int
		if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
			ps.Close()
			return nil, fmt.Errorf("pipe: %w", err)
		}
		ps = append(ps, fds)
	}

	return ps, nil
}

// ends returns the read end stage i takes as standard input and the write
// end it takes as standard output, -1 where it uses no pipe.
func (ps pipeSet) ends(i int) (in, out int) {
	in, out = -1, -1
	if i > 0 {
		in = ps[i-1][0]
	}
	if i < len(ps) {
		out = ps[i][1]
	}
	return in, out
}

// Close closes the parent's copies of every end.
func (ps pipeSet) Close() {
	for _, p := range ps {
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
	}
}
