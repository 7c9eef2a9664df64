package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the supervisor package.
var (
	// ErrStopRequested is returned by Launch once a stop has been requested.
	ErrStopRequested = errors.New("supervisor: stop requested")

	// ErrEmptyCommand is returned by Launch when argv is empty.
	ErrEmptyCommand = errors.New("supervisor: empty command")

	// ErrShutdownTimeout is logged when a child outlives its grace period
	// and has to be killed. It is never fatal.
	ErrShutdownTimeout = errors.New("supervisor: shutdown timeout")

	// ErrNotStarted is returned when stopping a handle that never ran.
	ErrNotStarted = errors.New("supervisor: process not started")
)

// LaunchError reports a child process that could not be started.
type LaunchError struct {
	Role string
	Args []string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s (%s): %v", e.Role, strings.Join(e.Args, " "), e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
