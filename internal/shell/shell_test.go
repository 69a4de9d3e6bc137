package shell

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobshell/internal/execute"
	"jobshell/internal/jobs"
	"jobshell/internal/parser"
	"jobshell/internal/sigpolicy"
)

type testShell struct {
	*Dispatcher
	dir      string
	out      bytes.Buffer
	errOut   bytes.Buffer
	exitCode int
	exited   bool
}

func newTestShell(t *testing.T, maxJobs int) *testShell {
	t.Helper()

	dir := t.TempDir()
	stdin, err := os.Open(os.DevNull)
	require.NoError(t, err)
	stdout, err := os.Create(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	t.Cleanup(func() {
		stdin.Close()
		stdout.Close()
	})

	ts := &testShell{dir: dir}
	launcher := &execute.Launcher{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stdout,
		Policy: sigpolicy.New(true, nil, nil),
	}
	table := jobs.NewTable(jobs.SysReaper{}, maxJobs, nil)
	ts.Dispatcher = New(table, launcher, &ts.out, &ts.errOut,
		WithColor(false),
		WithExit(func(code int) {
			ts.exited = true
			ts.exitCode = code
		}),
	)

	t.Cleanup(func() { ts.killAll() })
	return ts
}

func (ts *testShell) run(t *testing.T, input string) {
	t.Helper()

	line, err := parser.Parse([]byte(input))
	require.NoError(t, err)
	ts.Dispatch(line)
}

func (ts *testShell) stdout(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(ts.dir, "stdout"))
	require.NoError(t, err)
	return string(b)
}

func (ts *testShell) takeOut() string {
	s := ts.out.String()
	ts.out.Reset()
	return s
}

// killAll kills and reaps every job still in the table.
func (ts *testShell) killAll() {
	for ts.Jobs().Len() > 0 {
		job, _ := ts.Jobs().Remove(1)
		_ = job.Signal(jobs.SysReaper{}, syscall.SIGKILL)
		_ = job.Signal(jobs.SysReaper{}, syscall.SIGCONT)
		procs := job.Procs
		for len(procs) > 0 {
			res, err := jobs.WaitAll(jobs.SysReaper{}, job.Pgid, procs)
			if err != nil || !res.Stopped {
				break
			}
			procs = res.Live
		}
	}
}

// procState returns the state letter of pid from /proc, "" once it is gone.
func procState(pid int) string {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return ""
	}
	s := string(b)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return ""
	}
	return s[i+2 : i+3]
}

func waitForState(t *testing.T, pid int, want string) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if procState(pid) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("pid %d never reached state %q", pid, want)
}

func TestDispatchNil(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.Dispatch(nil)
	ts.run(t, "   ")

	assert.Empty(t, ts.out.String())
	assert.Empty(t, ts.errOut.String())
}

func TestForegroundPipeline(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, `printf 'b\na\nb\nc\n' | sort | uniq`)

	assert.Equal(t, "a\nb\nc\n", ts.stdout(t))
	assert.Empty(t, ts.errOut.String())
	assert.Zero(t, ts.Jobs().Len())
}

func TestForegroundRedirection(t *testing.T) {
	ts := newTestShell(t, 0)
	in := filepath.Join(ts.dir, "a")
	out := filepath.Join(ts.dir, "b")
	require.NoError(t, os.WriteFile(in, []byte("round trip\n"), 0o644))

	ts.run(t, "cat < "+in+" > "+out)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "round trip\n", string(got))
}

func TestBackgroundLaunchDoesNotBlock(t *testing.T) {
	ts := newTestShell(t, 0)

	start := time.Now()
	ts.run(t, "sleep 5 &")
	assert.Less(t, time.Since(start), 4*time.Second)

	require.Equal(t, 1, ts.Jobs().Len())
	job, err := ts.Jobs().Job(1)
	require.NoError(t, err)
	assert.Equal(t, jobs.Running, job.State)
	assert.Equal(t, "sleep 5", job.Label)
	assert.Equal(t, "[1] "+strconv.Itoa(job.Pid)+"\n", ts.out.String())
}

func TestJobsReportsTerminatedOnce(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, "true &")
	job, err := ts.Jobs().Job(1)
	require.NoError(t, err)
	waitForState(t, job.Pid, "Z")
	ts.takeOut()

	ts.run(t, "jobs")
	assert.Equal(t, "[1] "+strconv.Itoa(job.Pid)+" terminated true\n", ts.takeOut())

	ts.run(t, "jobs")
	assert.Empty(t, ts.takeOut())

	ts.run(t, "sleep 5 &")
	assert.True(t, strings.HasPrefix(ts.takeOut(), "[1] "), "slot 1 is reused")
}

func TestJobsFlags(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, "sleep 30 &")
	ts.run(t, "sleep 31 &")
	first, _ := ts.Jobs().Job(1)
	second, _ := ts.Jobs().Job(2)
	require.NoError(t, syscall.Kill(second.Pid, syscall.SIGSTOP))
	waitForState(t, second.Pid, "T")
	ts.takeOut()

	ts.run(t, "jobs -p")
	assert.Equal(t, strconv.Itoa(first.Pid)+"\n"+strconv.Itoa(second.Pid)+"\n", ts.takeOut())

	ts.run(t, "jobs -s")
	assert.Equal(t, "[2] "+strconv.Itoa(second.Pid)+" stopped sleep 31\n", ts.takeOut())

	ts.run(t, "jobs -r")
	assert.Equal(t, "[1] "+strconv.Itoa(first.Pid)+" running sleep 30\n", ts.takeOut())

	ts.run(t, "jobs -l -r")
	assert.Equal(t,
		"[1] "+strconv.Itoa(first.Pid)+" running sleep 30\n"+
			"    "+strconv.Itoa(first.Pid)+" sleep 30\n",
		ts.takeOut())

	ts.run(t, "jobs -x")
	assert.Contains(t, ts.errOut.String(), "jobshell: jobs:")
}

func TestFgDefaultsToHighestSlot(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, "sleep 30 &")
	ts.run(t, "sleep 0.2 &")
	ts.takeOut()

	ts.run(t, "fg")

	assert.Equal(t, "sleep 0.2\n", ts.takeOut())
	assert.Empty(t, ts.errOut.String())
	require.Equal(t, 1, ts.Jobs().Len())
	job, _ := ts.Jobs().Job(1)
	assert.Equal(t, "sleep 30", job.Label)
}

func TestFgNoSuchJob(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, "fg 1")
	assert.Equal(t, "jobshell: fg: no such job: 1\n", ts.errOut.String())

	ts.run(t, "sleep 30 &")
	ts.errOut.Reset()
	ts.run(t, "fg %2")
	assert.Equal(t, "jobshell: fg: no such job: 2\n", ts.errOut.String())
	assert.Equal(t, 1, ts.Jobs().Len())

	ts.errOut.Reset()
	ts.run(t, "fg x")
	assert.Equal(t, "jobshell: fg: x: invalid job\n", ts.errOut.String())
}

func TestStoppedForegroundJobIsTracked(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, `sh -c 'kill -STOP $$; echo resumed'`)

	require.Equal(t, 1, ts.Jobs().Len())
	job, _ := ts.Jobs().Job(1)
	assert.Equal(t, jobs.Stopped, job.State)
	assert.Contains(t, ts.takeOut(), "[1] "+strconv.Itoa(job.Pid)+" stopped sh -c kill -STOP $$; echo resumed\n")

	ts.run(t, "fg 1")

	assert.Zero(t, ts.Jobs().Len())
	assert.Equal(t, "resumed\n", ts.stdout(t))
	assert.Empty(t, ts.errOut.String())
}

func TestForegroundSeesLaterStageStop(t *testing.T) {
	ts := newTestShell(t, 0)

	line, err := parser.Parse([]byte(`yes | sh -c 'kill -STOP $$'`))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		ts.Dispatch(line)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("foreground wait missed the stop of the last stage")
	}

	require.Equal(t, 1, ts.Jobs().Len())
	job, _ := ts.Jobs().Job(1)
	assert.Equal(t, jobs.Stopped, job.State)
	assert.Len(t, job.Procs, 2)
	assert.Contains(t, ts.takeOut(), " stopped yes | sh -c kill -STOP $$\n")
}

func TestBgResumesStoppedJob(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, `sh -c 'kill -STOP $$; echo resumed' &`)
	job, _ := ts.Jobs().Job(1)
	waitForState(t, job.Pid, "T")
	ts.takeOut()

	ts.run(t, "jobs")
	assert.Equal(t, "[1] "+strconv.Itoa(job.Pid)+" stopped sh -c kill -STOP $$; echo resumed\n", ts.takeOut())

	ts.run(t, "bg")
	assert.Equal(t, "[1] "+strconv.Itoa(job.Pid)+" running sh -c kill -STOP $$; echo resumed &\n", ts.takeOut())

	waitForState(t, job.Pid, "Z")
	ts.run(t, "jobs")
	assert.Equal(t, "[1] "+strconv.Itoa(job.Pid)+" terminated sh -c kill -STOP $$; echo resumed\n", ts.takeOut())
	assert.Equal(t, "resumed\n", ts.stdout(t))
}

func TestFgTerminatedJob(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, "true &")
	job, _ := ts.Jobs().Job(1)
	waitForState(t, job.Pid, "Z")

	ts.run(t, "fg")
	assert.Equal(t, "jobshell: fg: job has terminated\n", ts.errOut.String())
	assert.Zero(t, ts.Jobs().Len())
}

func TestJobTableFull(t *testing.T) {
	ts := newTestShell(t, 1)

	ts.run(t, "sleep 30 &")
	ts.run(t, "sleep 31 &")

	assert.Equal(t, 1, ts.Jobs().Len())
	assert.Contains(t, ts.errOut.String(), "sleep 31: job table full")
}

func TestNonexistentProgram(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, "/no/such/prog")

	assert.Equal(t,
		"jobshell: /no/such/prog: no such file or directory\n"+
			"jobshell: /no/such/prog: exit status 1\n",
		ts.errOut.String())
	assert.False(t, ts.exited)
	assert.Zero(t, ts.Jobs().Len())
}

func TestNonZeroExitIsReported(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, "sh -c 'exit 3'")

	assert.Equal(t, "jobshell: sh -c exit 3: exit status 3\n", ts.errOut.String())
}

func TestCd(t *testing.T) {
	ts := newTestShell(t, 0)
	orig, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(orig) })

	target, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	ts.run(t, "cd "+target)
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, target, wd)

	ts.run(t, "pwd")
	assert.Equal(t, target+"\n", ts.takeOut())

	home, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	t.Setenv("HOME", home)
	ts.run(t, "cd")
	wd, err = os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, home, wd)

	missing := filepath.Join(target, "missing")
	ts.run(t, "cd "+missing)
	assert.Equal(t, "jobshell: cd: "+missing+": no such file or directory\n", ts.errOut.String())
	wd, _ = os.Getwd()
	assert.Equal(t, home, wd)
}

func TestCdDirectoryError(t *testing.T) {
	err := cd(nil, []string{"cd", "/no/such/dir"})

	var dirErr *DirectoryError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, "/no/such/dir", dirErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.ErrorIs(t, cd(nil, []string{"cd", "a", "b"}), errTooManyArgs)
}

func TestExit(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, "sleep 30 &")
	ts.run(t, "exit")

	assert.True(t, ts.exited)
	assert.Zero(t, ts.exitCode)
	assert.Equal(t, 1, ts.Jobs().Len(), "background jobs are left alone")
}

func TestNotify(t *testing.T) {
	ts := newTestShell(t, 0)

	ts.run(t, "sleep 30 &")
	ts.run(t, "true &")
	job, _ := ts.Jobs().Job(2)
	waitForState(t, job.Pid, "Z")
	ts.takeOut()

	ts.Notify()
	assert.Equal(t, "[2] "+strconv.Itoa(job.Pid)+" terminated true\n", ts.takeOut())
	assert.Equal(t, 1, ts.Jobs().Len())

	ts.Notify()
	assert.Empty(t, ts.takeOut())
}

func TestTrailingBackgroundMarkerIsStripped(t *testing.T) {
	ts := newTestShell(t, 0)

	line, err := parser.Parse([]byte("sleep 5 '&'"))
	require.NoError(t, err)
	ts.Dispatch(line)

	require.Equal(t, 1, ts.Jobs().Len())
	job, _ := ts.Jobs().Job(1)
	assert.Equal(t, "sleep 5", job.Label)
}
