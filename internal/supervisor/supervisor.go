// Package supervisor launches and supervises the child processes that make
// up a deepwiki deployment.
//
// The Supervisor provides:
//   - child launch with an environment overlay
//   - per-child output monitors tagged with the child's role
//   - liveness waiting
//   - two-phase termination (SIGTERM, bounded wait, SIGKILL)
//   - signal-driven shutdown through a ShutdownQueue
//
// Supervisor is safe for concurrent use. Monitors never hold supervisor
// locks, so a busy or stuck child cannot block Stop.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// outputDrainTimeout bounds how long the monitor may keep reading after
// the child has been reaped. Grandchildren that inherited the pipe would
// otherwise keep the monitor alive indefinitely.
const outputDrainTimeout = 500 * time.Millisecond

// maxLineBytes is the longest child output line the monitor accepts.
const maxLineBytes = 1 << 20

// WaitReason tells why Wait returned.
type WaitReason int

const (
	// ReasonExited means the child is no longer alive.
	ReasonExited WaitReason = iota
	// ReasonStopRequested means RequestStop was called.
	ReasonStopRequested
	// ReasonCanceled means the caller's context ended.
	ReasonCanceled
)

func (r WaitReason) String() string {
	switch r {
	case ReasonExited:
		return "exited"
	case ReasonStopRequested:
		return "stop-requested"
	case ReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// LineSink receives every non-blank output line of a child.
type LineSink func(role, line string)

// Supervisor owns a set of child handles.
type Supervisor struct {
	mu      sync.RWMutex
	handles []*Handle

	stopCh        chan struct{}
	stopOnce      sync.Once
	stopRequested atomic.Bool

	logger *slog.Logger
	sink   LineSink
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLineSink replaces the default output sink, which logs each line.
func WithLineSink(fn LineSink) Option {
	return func(s *Supervisor) {
		s.sink = fn
	}
}

// New creates a Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		stopCh: make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		logger := s.logger
		s.sink = func(role, line string) {
			logger.Info("child output", "role", role, "line", line)
		}
	}
	return s
}

// Launch starts argv as a child process tagged with role. The child
// inherits the parent environment with overlay applied on top; overlay
// values win. Stdout and stderr are merged into one monitored stream.
//
// Failures are reported as *LaunchError. Launch refuses to start anything
// once a stop has been requested.
func (s *Supervisor) Launch(ctx context.Context, role string, argv []string, overlay map[string]string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, &LaunchError{Role: role, Err: ErrEmptyCommand}
	}
	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Role: role, Args: argv, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Checked under the lock so StopAll cannot miss a handle.
	if s.stopRequested.Load() {
		return nil, &LaunchError{Role: role, Args: argv, Err: ErrStopRequested}
	}

	h := newHandle(uuid.New().String(), role, argv, overlay)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Role: role, Args: argv, Err: err}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = MergeEnv(os.Environ(), overlay)
	cmd.Stdout = pw
	cmd.Stderr = pw
	h.cmd = cmd
	h.output = pr

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, &LaunchError{Role: role, Args: argv, Err: err}
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	h.Started = time.Now()
	h.state.Store(int32(StateRunning))
	s.handles = append(s.handles, h)

	s.logger.Info("child started", "role", role, "pid", h.PID(), "id", h.ID)

	go s.monitor(h)
	go s.waitLoop(h)

	return h, nil
}

// monitor forwards each non-blank line of the child's output to the sink.
// Read errors, including the read end being closed, end the loop silently.
func (s *Supervisor) monitor(h *Handle) {
	defer close(h.outputDone)

	scanner := bufio.NewScanner(h.output)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.deliver(h.Role, line)
	}
}

func (s *Supervisor) deliver(role, line string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("output sink panicked", "role", role, "panic", r)
		}
	}()
	s.sink(role, line)
}

// waitLoop reaps the child, records its exit, and closes the output pipe.
func (s *Supervisor) waitLoop(h *Handle) {
	h.waitOnce.Do(func() {
		err := h.cmd.Wait()

		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()

		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		h.exitCode.Store(int32(code))

		prev := State(h.state.Swap(int32(StateStopped)))
		close(h.done)

		if prev == StateRunning && !s.stopRequested.Load() {
			s.logger.Warn("child exited unexpectedly", "role", h.Role, "pid", h.PID(), "exit_code", code)
		} else {
			s.logger.Info("child stopped", "role", h.Role, "pid", h.PID(), "exit_code", code, "forced", h.Forced())
		}

		select {
		case <-h.outputDone:
		case <-time.After(outputDrainTimeout):
		}
		_ = h.output.Close()
	})
}

// Wait blocks until h is no longer alive, a stop is requested, or ctx
// ends. poll is the liveness check interval.
func (s *Supervisor) Wait(ctx context.Context, h *Handle, poll time.Duration) WaitReason {
	if poll <= 0 {
		poll = time.Second
	}
	if !h.Alive() {
		return ReasonExited
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-h.Done():
			return ReasonExited
		case <-s.stopCh:
			return ReasonStopRequested
		case <-ctx.Done():
			return ReasonCanceled
		case <-ticker.C:
			if !h.Alive() {
				return ReasonExited
			}
		}
	}
}

// Stop terminates h: SIGTERM, then up to grace for the child to exit,
// then SIGKILL. Stop is idempotent; stopping a stopped handle returns nil.
// Escalation to SIGKILL is logged with ErrShutdownTimeout and is not an
// error.
func (s *Supervisor) Stop(h *Handle, grace time.Duration) error {
	if h == nil {
		return nil
	}
	switch h.State() {
	case StateNotStarted:
		return ErrNotStarted
	case StateStopped:
		return nil
	}

	// Concurrent stops of the same handle wait for the first one.
	h.stopMu.Lock()
	defer h.stopMu.Unlock()

	if !h.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		if h.State() == StateStopped {
			return nil
		}
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-h.done
			return nil
		}
		s.logger.Warn("terminate failed, killing", "role", h.Role, "pid", h.PID(), "error", err)
		return s.kill(h)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
	}

	s.logger.Warn("child did not stop in time, killing",
		"role", h.Role, "pid", h.PID(), "grace", grace, "error", ErrShutdownTimeout)
	return s.kill(h)
}

func (s *Supervisor) kill(h *Handle) error {
	h.forced.Store(true)
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-h.done
	return nil
}

// StopAll requests a stop and terminates every live handle in parallel,
// applying the same grace period to each. Failures do not interrupt the
// other stops; they are joined into the returned error.
func (s *Supervisor) StopAll(grace time.Duration) error {
	s.RequestStop()

	handles := s.Handles()
	errs := make([]error, len(handles))

	var g errgroup.Group
	for i, h := range handles {
		g.Go(func() error {
			errs[i] = s.Stop(h, grace)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// RequestStop marks the supervisor as stopping. Waiters return with
// ReasonStopRequested and Launch refuses new children. It does not signal
// any child.
func (s *Supervisor) RequestStop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopRequested.Store(true)
		s.mu.Unlock()
		close(s.stopCh)
	})
}

// StopRequested reports whether RequestStop has been called.
func (s *Supervisor) StopRequested() bool {
	return s.stopRequested.Load()
}

// StopCh is closed when a stop is requested.
func (s *Supervisor) StopCh() <-chan struct{} {
	return s.stopCh
}

// Handles returns every handle launched so far, in launch order.
func (s *Supervisor) Handles() []*Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Handle, len(s.handles))
	copy(out, s.handles)
	return out
}

// MergeEnv applies overlay on top of base (KEY=VALUE entries). Overlay
// keys replace base entries with the same key.
func MergeEnv(base []string, overlay map[string]string) []string {
	out := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overlay[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range overlay {
		out = append(out, k+"="+v)
	}
	return out
}
