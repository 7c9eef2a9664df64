package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a child handle. A handle moves forward
// only: NotStarted, Running, Stopping, Stopped. Stopping is skipped when a
// child exits on its own.
type State int32

const (
	// StateNotStarted is the state before the OS process exists.
	StateNotStarted State = iota
	// StateRunning means the OS process has been started and not yet reaped.
	StateRunning
	// StateStopping means a stop was requested and termination is underway.
	StateStopping
	// StateStopped means the OS process has been reaped. Terminal.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Handle is one supervised child process. Handles are created by
// Supervisor.Launch and are never restarted once stopped.
type Handle struct {
	// ID is a unique identifier assigned at launch.
	ID string

	// Role tags every output line, e.g. "WEB", "MCP" or "COMBINED".
	Role string

	// Args is the full argv, program first.
	Args []string

	// Env is the overlay applied on top of the parent environment.
	Env map[string]string

	// Started is when the OS process was started.
	Started time.Time

	cmd    *exec.Cmd
	output *os.File

	state    atomic.Int32
	exitCode atomic.Int32
	forced   atomic.Bool

	mu      sync.RWMutex
	exitErr error

	done       chan struct{}
	outputDone chan struct{}
	waitOnce   sync.Once
	stopMu     sync.Mutex
}

func newHandle(id, role string, args []string, overlay map[string]string) *Handle {
	h := &Handle{
		ID:         id,
		Role:       role,
		Args:       args,
		Env:        overlay,
		done:       make(chan struct{}),
		outputDone: make(chan struct{}),
	}
	h.state.Store(int32(StateNotStarted))
	h.exitCode.Store(-1)
	return h
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Alive reports whether the OS process is still running.
func (h *Handle) Alive() bool {
	s := h.State()
	return s == StateRunning || s == StateStopping
}

// PID returns the OS process id, or -1 before start.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// ExitCode returns the exit status once stopped. It is -1 while running
// and when the child was ended by a signal.
func (h *Handle) ExitCode() int {
	return int(h.exitCode.Load())
}

// ExitError returns the error reported by the OS wait, if any.
func (h *Handle) ExitError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.exitErr
}

// Forced reports whether the child had to be killed after the grace period.
func (h *Handle) Forced() bool {
	return h.forced.Load()
}

// Done is closed when the handle reaches StateStopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// OutputDone is closed when the output monitor for this handle has ended.
func (h *Handle) OutputDone() <-chan struct{} {
	return h.outputDone
}

// Runtime returns how long the child has been (or was) running.
func (h *Handle) Runtime() time.Duration {
	if h.Started.IsZero() {
		return 0
	}
	return time.Since(h.Started)
}
