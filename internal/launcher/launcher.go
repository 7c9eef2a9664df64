package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/kratos06/deepwiki-open/internal/supervisor"
)

// Options configures a Launcher.
type Options struct {
	Mode  Mode
	Port  int
	Split bool

	// Grace is how long each child gets to exit after SIGTERM.
	Grace time.Duration
	// Poll is the liveness check interval.
	Poll time.Duration

	// Exe is the deepwiki binary the children run.
	Exe string
	// ConfigPath, when set, is passed to every child as --config.
	ConfigPath string
	// LockPath guards against two launchers sharing a data directory.
	LockPath string

	// Out receives the startup banner and tagged child output.
	Out    io.Writer
	Logger *slog.Logger
}

// Launcher runs a deployment plan under a Supervisor.
type Launcher struct {
	opts   Options
	logger *slog.Logger
	out    io.Writer
	outMu  sync.Mutex
	sup    *supervisor.Supervisor
	queue  *supervisor.ShutdownQueue
}

// New creates a Launcher.
func New(opts Options) *Launcher {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Grace <= 0 {
		opts.Grace = 5 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = time.Second
	}
	l := &Launcher{
		opts:   opts,
		logger: opts.Logger,
		out:    opts.Out,
		queue:  supervisor.NewShutdownQueue(opts.Logger),
	}
	l.sup = supervisor.New(
		supervisor.WithLogger(opts.Logger),
		supervisor.WithLineSink(l.printLine),
	)
	return l
}

func (l *Launcher) printLine(role, line string) {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	fmt.Fprintf(l.out, "[%s] %s\n", role, line)
}

func (l *Launcher) printf(format string, args ...any) {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	fmt.Fprintf(l.out, format, args...)
}

// Shutdown requests a graceful shutdown, as if SIGTERM had been received.
func (l *Launcher) Shutdown() {
	l.queue.Notify(syscall.SIGTERM)
}

// Run launches the plan and blocks until every child has stopped. A child
// that exits on its own is logged and the others keep running; the
// launcher stops them all only on a shutdown request or once no child is
// left. Run returns an error when a child exited on its own with a
// non-zero status before shutdown was requested.
func (l *Launcher) Run(ctx context.Context) error {
	unlock, err := l.lock()
	if err != nil {
		return err
	}
	defer unlock()

	specs := Plan(l.opts.Mode, l.opts.Port, l.opts.Split, l.opts.Exe)
	if len(specs) == 0 {
		return fmt.Errorf("invalid mode %q", l.opts.Mode)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopWatch := l.queue.Watch(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopWatch()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		l.queue.Run(ctx, func(sig os.Signal) {
			l.logger.Info("received signal, shutting down", "signal", sig.String())
			if err := l.sup.StopAll(l.opts.Grace); err != nil {
				l.logger.Error("stopping services", "error", err)
			}
		})
	}()

	l.printf("Starting DeepWiki in %s mode on port %d\n", l.opts.Mode, l.opts.Port)

	handles := l.launchAll(ctx, specs)
	if len(handles) == 0 {
		return errors.New("no service could be started")
	}
	for _, h := range handles {
		if h.Role != RoleMCP {
			l.printf("Web API available at: http://localhost:%d\n", portOf(specs, h.Role))
		}
	}

	exited := make(chan *supervisor.Handle, len(handles))
	for _, h := range handles {
		go func() {
			if l.sup.Wait(ctx, h, l.opts.Poll) == supervisor.ReasonExited {
				exited <- h
			}
		}()
	}

	failed := l.awaitChildren(ctx, exited, len(handles))

	if err := l.sup.StopAll(l.opts.Grace); err != nil {
		l.logger.Error("stopping services", "error", err)
	}
	cancel()
	<-shutdownDone

	l.printf("DeepWiki services stopped\n")

	if failed != nil {
		return fmt.Errorf("%s service exited unexpectedly with code %d", failed.Role, failed.ExitCode())
	}
	return nil
}

// awaitChildren consumes child exits until none is left alive or a
// shutdown is requested. It returns the first child that failed on its
// own, if any.
func (l *Launcher) awaitChildren(ctx context.Context, exited <-chan *supervisor.Handle, alive int) *supervisor.Handle {
	var failed *supervisor.Handle
	for alive > 0 {
		select {
		case h := <-exited:
			alive--
			if l.stopping(ctx) {
				continue
			}
			code := h.ExitCode()
			if code == 0 {
				l.logger.Info("service exited", "role", h.Role, "remaining", alive)
				continue
			}
			l.logger.Error("service exited unexpectedly", "role", h.Role, "code", code, "remaining", alive)
			if alive > 0 {
				l.printf("%s service exited with code %d; other services keep running\n", h.Role, code)
			}
			if failed == nil {
				failed = h
			}
		case <-l.sup.StopCh():
			return failed
		case <-ctx.Done():
			return failed
		}
	}
	return failed
}

func (l *Launcher) stopping(ctx context.Context) bool {
	return l.queue.Requested() || l.sup.StopRequested() || ctx.Err() != nil
}

// launchAll starts every spec. One failed launch does not prevent the
// others from starting.
func (l *Launcher) launchAll(ctx context.Context, specs []LaunchSpec) []*supervisor.Handle {
	var handles []*supervisor.Handle
	for _, spec := range specs {
		args := l.childArgs(spec.Args)
		h, err := l.sup.Launch(ctx, spec.Role, args, spec.Env)
		if err != nil {
			l.logger.Error("failed to start service", "role", spec.Role, "error", err)
			continue
		}
		l.logger.Info("service started", "role", spec.Role, "port", spec.Port, "pid", h.PID())
		handles = append(handles, h)
	}
	return handles
}

// childArgs inserts --config ahead of the subcommand.
func (l *Launcher) childArgs(args []string) []string {
	if l.opts.ConfigPath == "" || len(args) == 0 {
		return args
	}
	out := make([]string, 0, len(args)+2)
	out = append(out, args[0], "--config", l.opts.ConfigPath)
	return append(out, args[1:]...)
}

func (l *Launcher) lock() (func(), error) {
	if l.opts.LockPath == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(l.opts.LockPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fileLock := flock.New(l.opts.LockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("launcher already running (lock held on %s)", l.opts.LockPath)
	}
	return func() { _ = fileLock.Unlock() }, nil
}

// Handles exposes the supervised children.
func (l *Launcher) Handles() []*supervisor.Handle {
	return l.sup.Handles()
}

func portOf(specs []LaunchSpec, role string) int {
	for _, s := range specs {
		if s.Role == role {
			return s.Port
		}
	}
	return 0
}
