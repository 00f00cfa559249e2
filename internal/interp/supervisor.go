// Package interp owns the single interpreter subprocess and the buffer its
// output is captured into.
package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/voiceforth/internal/logging"
	"github.com/mohammad-safakhou/voiceforth/internal/telemetry"
)

// Options configures a Supervisor.
type Options struct {
	Command string
	Args    []string
	// PTY runs the interpreter on a pseudo-terminal instead of pipes. The
	// terminal echoes input, which the turn protocol strips.
	PTY        bool
	KillSignal os.Signal
	// CaptureLimit bounds the capture buffer; 0 uses DefaultCaptureLimit.
	CaptureLimit int
	// WriteTimeout bounds one write to an interpreter that stopped reading
	// its input; 0 uses DefaultWriteTimeout.
	WriteTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *telemetry.Metrics
}

// DefaultWriteTimeout is how long Write waits on a full input pipe before
// killing the interpreter.
const DefaultWriteTimeout = 2 * time.Second

// Supervisor launches and replaces the interpreter process. At most one
// process is live at a time; its merged stdout/stderr lands in Output.
type Supervisor struct {
	opts    Options
	log     *zap.Logger
	metrics *telemetry.Metrics
	out     *Buffer

	mu   sync.Mutex
	proc *process
}

type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	tty   *os.File
	done  chan struct{}
}

// NewSupervisor returns a Supervisor with no running process.
func NewSupervisor(opts Options) *Supervisor {
	if opts.KillSignal == nil {
		opts.KillSignal = syscall.SIGTERM
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	limit := opts.CaptureLimit
	if limit == 0 {
		limit = DefaultCaptureLimit
	}
	return &Supervisor{
		opts:    opts,
		log:     logging.OrNop(opts.Logger).Named("interp"),
		metrics: opts.Metrics,
		out:     NewBuffer(limit),
	}
}

// Output exposes the capture buffer.
func (s *Supervisor) Output() *Buffer { return s.out }

// Running reports whether a process is live.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil
}

// Launch signals any running process to terminate, without waiting for it,
// and starts a fresh one.
func (s *Supervisor) Launch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		s.terminate(s.proc)
		s.proc = nil
	}

	p, err := s.start()
	if err != nil {
		return err
	}
	s.proc = p
	s.metrics.Launched()
	s.log.Info("interpreter launched",
		zap.String("command", s.opts.Command),
		zap.Int("pid", p.cmd.Process.Pid),
		zap.Bool("pty", s.opts.PTY))
	go s.reap(p)
	return nil
}

func (s *Supervisor) start() (*process, error) {
	cmd := exec.Command(s.opts.Command, s.opts.Args...)
	cmd.Env = os.Environ()
	p := &process{cmd: cmd, done: make(chan struct{})}

	if s.opts.PTY {
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("start %s on pty: %w", s.opts.Command, err)
		}
		p.tty = f
		p.stdin = f
		go func() {
			// Reading the master fails with EIO once the child is gone.
			_, _ = io.Copy(s.out, f)
		}()
		return p, nil
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	// The same writer on both streams makes exec share one pipe, so
	// stdout and stderr interleave in arrival order.
	cmd.Stdout = s.out
	cmd.Stderr = s.out
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start %s: %w", s.opts.Command, err)
	}
	p.stdin = stdin
	return p, nil
}

// reap waits for p to exit and clears the running flag if p is still the
// current process.
func (s *Supervisor) reap(p *process) {
	err := p.cmd.Wait()
	if p.tty != nil {
		p.tty.Close()
	}

	s.mu.Lock()
	current := s.proc == p
	if current {
		s.proc = nil
	}
	s.mu.Unlock()
	close(p.done)

	s.metrics.Exited()
	fields := []zap.Field{zap.Int("pid", p.cmd.Process.Pid), zap.Bool("current", current)}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		s.log.Info("interpreter exited", fields...)
	case errors.As(err, &exitErr):
		s.log.Warn("interpreter exited", append(fields, zap.String("state", exitErr.String()))...)
	default:
		s.log.Warn("interpreter wait failed", append(fields, zap.Error(err))...)
	}
}

func (s *Supervisor) terminate(p *process) {
	if p.cmd.Process == nil {
		return
	}
	if err := p.cmd.Process.Signal(s.opts.KillSignal); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return
		}
		s.log.Debug("signal failed, killing", zap.Error(err))
		_ = p.cmd.Process.Kill()
	}
}

// Write sends line plus a newline to the interpreter's input. The lock is
// released before writing, so Running, Launch and Stop still answer while
// an interpreter that stopped reading has a full pipe. A write that does
// not finish within WriteTimeout kills the process.
func (s *Supervisor) Write(line string) error {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()
	if p == nil {
		return ErrProcessNotRunning
	}

	written := make(chan error, 1)
	go func() {
		_, err := io.WriteString(p.stdin, line+"\n")
		written <- err
	}()

	timer := time.NewTimer(s.opts.WriteTimeout)
	defer timer.Stop()
	select {
	case err := <-written:
		if err == nil {
			return nil
		}
		// A broken input stream means the process is useless even if it
		// has not been reaped yet; drop it so the next turn relaunches.
		s.drop(p)
		s.terminate(p)
		return fmt.Errorf("%w: %v", ErrProcessNotRunning, err)
	case <-timer.C:
		s.log.Warn("interpreter not reading input, killing",
			zap.Int("pid", p.cmd.Process.Pid),
			zap.Duration("timeout", s.opts.WriteTimeout))
		s.drop(p)
		// The pending write fails once the process is gone and its pipe
		// is closed.
		_ = p.cmd.Process.Kill()
		return fmt.Errorf("%w: input not accepted within %s", ErrProcessNotRunning, s.opts.WriteTimeout)
	}
}

// drop forgets p if it is still the current process.
func (s *Supervisor) drop(p *process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == p {
		s.proc = nil
	}
}

// Reset discards captured output.
func (s *Supervisor) Reset() { s.out.Reset() }

// Drain returns and clears captured output.
func (s *Supervisor) Drain() string { return s.out.Drain() }

// Stop terminates the running process and waits for it to exit or for ctx
// to end.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	p := s.proc
	if p == nil {
		s.mu.Unlock()
		return nil
	}
	s.terminate(p)
	s.proc = nil
	s.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
		return ctx.Err()
	}
}
