package interp

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mohammad-safakhou/voiceforth/internal/telemetry"
)

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func stop(t *testing.T, s *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestWriteWithoutProcess(t *testing.T) {
	s := NewSupervisor(Options{Command: "cat"})
	assert.False(t, s.Running())
	err := s.Write("1 2 +")
	assert.True(t, errors.Is(err, ErrProcessNotRunning))
}

func TestLaunchWriteCapture(t *testing.T) {
	defer goleak.VerifyNone(t)
	requireTool(t, "cat")

	m := telemetry.New(prometheus.NewRegistry())
	s := NewSupervisor(Options{Command: "cat", Metrics: m})
	require.NoError(t, s.Launch())
	defer stop(t, s)
	require.True(t, s.Running())

	require.NoError(t, s.Write("2 3 + ."))
	require.Eventually(t, func() bool { return s.Output().Len() >= len("2 3 + .\n") }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "2 3 + .\n", s.Drain())
	assert.Equal(t, 0, s.Output().Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InterpreterLaunches))
}

func TestMergesStdoutAndStderr(t *testing.T) {
	defer goleak.VerifyNone(t)
	requireTool(t, "sh")

	s := NewSupervisor(Options{Command: "sh", Args: []string{"-c", "read l; echo out; echo err 1>&2; read x"}})
	require.NoError(t, s.Launch())
	defer stop(t, s)

	require.NoError(t, s.Write("go"))
	require.Eventually(t, func() bool { return s.Output().Len() >= len("out\nerr\n") }, 2*time.Second, 5*time.Millisecond)
	got := s.Drain()
	assert.Contains(t, got, "out\n")
	assert.Contains(t, got, "err\n")
}

func TestRelaunchReplacesProcess(t *testing.T) {
	defer goleak.VerifyNone(t)
	requireTool(t, "cat")

	s := NewSupervisor(Options{Command: "cat", KillSignal: syscall.SIGTERM})
	require.NoError(t, s.Launch())
	first := current(s)

	require.NoError(t, s.Launch())
	defer stop(t, s)

	select {
	case <-first.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("previous interpreter was not terminated")
	}
	// The replaced process exiting must not clear the new one.
	assert.True(t, s.Running())
	require.NoError(t, s.Write("again"))
	require.Eventually(t, func() bool { return strings.Contains(s.Output().Drain(), "again") }, 2*time.Second, 5*time.Millisecond)
}

func current(s *Supervisor) *process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// sleep never reads its input, so a large write fills the pipe and blocks.
func TestRunningAnswersWhileWriteBlocks(t *testing.T) {
	defer goleak.VerifyNone(t)
	requireTool(t, "sleep")

	s := NewSupervisor(Options{Command: "sleep", Args: []string{"30"}, WriteTimeout: time.Minute})
	require.NoError(t, s.Launch())
	p := current(s)

	written := make(chan error, 1)
	go func() { written <- s.Write(strings.Repeat("1 ", 100000)) }()
	time.Sleep(50 * time.Millisecond)

	answered := make(chan bool, 1)
	go func() { answered <- s.Running() }()
	select {
	case running := <-answered:
		assert.True(t, running)
	case <-time.After(time.Second):
		t.Fatalf("Running blocked behind a pending write")
	}

	stop(t, s)
	select {
	case err := <-written:
		assert.ErrorIs(t, err, ErrProcessNotRunning)
	case <-time.After(5 * time.Second):
		t.Fatalf("write did not fail after the interpreter stopped")
	}
	<-p.done
}

func TestWriteTimeoutKillsStalledInterpreter(t *testing.T) {
	defer goleak.VerifyNone(t)
	requireTool(t, "sleep")

	s := NewSupervisor(Options{Command: "sleep", Args: []string{"30"}, WriteTimeout: 100 * time.Millisecond})
	require.NoError(t, s.Launch())
	p := current(s)

	start := time.Now()
	err := s.Write(strings.Repeat("1 ", 100000))
	assert.ErrorIs(t, err, ErrProcessNotRunning)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, s.Running())

	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("stalled interpreter was not killed")
	}
}

func TestExitClearsRunning(t *testing.T) {
	defer goleak.VerifyNone(t)
	requireTool(t, "sh")

	s := NewSupervisor(Options{Command: "sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, s.Launch())
	require.Eventually(t, func() bool { return !s.Running() }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Write("anything"), ErrProcessNotRunning)
}

func TestLaunchMissingBinary(t *testing.T) {
	s := NewSupervisor(Options{Command: "definitely-not-an-interpreter-binary"})
	assert.Error(t, s.Launch())
	assert.False(t, s.Running())
}

func TestBufferLimitDropsOldest(t *testing.T) {
	b := NewBuffer(4)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("def"))
	assert.Equal(t, "cdef", b.Drain())
	assert.Equal(t, "", b.Drain())
}

func TestParseSignal(t *testing.T) {
	for _, name := range []string{"", "SIGTERM", "term", "SIGQUIT", "int", "hup", "KILL"} {
		_, err := ParseSignal(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseSignal("SIGWINCH")
	assert.Error(t, err)
}
