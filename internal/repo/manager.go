package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/kratos06/deepwiki-open/internal/engine"
)

// cloneLockRetry is how often Prepare retries a held clone lock.
const cloneLockRetry = 50 * time.Millisecond

// gitCommand is a package-level var to allow test injection.
var gitCommand = func(ctx context.Context, dir string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	// Never prompt for credentials on a terminal the server does not own.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	return cmd
}

// Manager materializes one repository under a base directory. It
// implements engine.IndexManager.
type Manager struct {
	baseDir string
	logger  *slog.Logger

	mu   sync.RWMutex
	root string
}

// NewManager creates a Manager that clones into baseDir.
func NewManager(baseDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{baseDir: baseDir, logger: logger}
}

// Factory adapts NewManager to engine.IndexFactory.
func Factory(baseDir string, logger *slog.Logger) engine.IndexFactory {
	return func(ctx context.Context, ref engine.RepoRef) (engine.IndexManager, error) {
		return NewManager(baseDir, logger), nil
	}
}

// RootPath returns the local checkout, or "" if Prepare has not succeeded.
func (m *Manager) RootPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

// Prepare makes ref available on disk. Local repositories are used in
// place. Remote ones are shallow-cloned once into
// <baseDir>/<type>/<host>/<owner>_<repo> and reused afterwards. A file
// lock next to the checkout serializes clones into the same directory,
// across goroutines and processes.
func (m *Manager) Prepare(ctx context.Context, ref engine.RepoRef) error {
	if ref.Type == TypeLocal {
		info, err := os.Stat(ref.Location)
		if err != nil {
			return fmt.Errorf("local repository %s: %w", ref.Location, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("local repository %s is not a directory", ref.Location)
		}
		abs, err := filepath.Abs(ref.Location)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", ref.Location, err)
		}
		m.setRoot(abs)
		return nil
	}

	dest, err := checkoutDir(m.baseDir, ref)
	if err != nil {
		return err
	}
	if populated(dest) {
		m.logger.Debug("reusing existing clone", "repo", ref.Location, "path", dest)
		m.setRoot(dest)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating repos directory: %w", err)
	}
	lock := flock.New(dest + ".lock")
	locked, err := lock.TryLockContext(ctx, cloneLockRetry)
	if err != nil {
		return fmt.Errorf("locking %s: %w", dest, err)
	}
	if !locked {
		return fmt.Errorf("locking %s: lock not acquired", dest)
	}
	defer func() { _ = lock.Unlock() }()

	// Another caller may have finished the clone while we waited.
	if populated(dest) {
		m.logger.Debug("reusing existing clone", "repo", ref.Location, "path", dest)
		m.setRoot(dest)
		return nil
	}

	cloneURL, err := authURL(ref.Location, ref.Type, ref.AccessToken)
	if err != nil {
		return err
	}

	m.logger.Info("cloning repository", "repo", ref.Location, "path", dest)
	cmd := gitCommand(ctx, "", "clone", "--depth=1", "--single-branch", cloneURL, dest)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.RemoveAll(dest)
		msg := redact(strings.TrimSpace(stderr.String()), ref.AccessToken)
		return fmt.Errorf("git clone %s: %s: %w", ref.Location, msg, err)
	}

	m.setRoot(dest)
	return nil
}

// checkoutDir places a remote repository under its type and host so that
// the same owner/name on two hosts never share a checkout.
func checkoutDir(baseDir string, ref engine.RepoRef) (string, error) {
	owner, name, _ := ParseURL(ref.Location)
	if owner == "" || name == "" {
		return "", fmt.Errorf("cannot determine owner and repository from %q", ref.Location)
	}
	typ := ref.Type
	if typ == "" {
		typ = DetectType(ref.Location)
	}
	return filepath.Join(baseDir, pathSafe(typ), pathSafe(hostOf(ref.Location)), pathSafe(owner)+"_"+pathSafe(name)), nil
}

// hostOf returns the lower-cased host of a URL, also for scp-style
// "git@host:owner/repo" locations.
func hostOf(location string) string {
	if u, err := url.Parse(location); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	rest := location
	if at := strings.Index(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	if colon := strings.Index(rest, ":"); colon > 0 {
		return strings.ToLower(rest[:colon])
	}
	return "unknown-host"
}

func pathSafe(s string) string {
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, s)
}

func populated(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

func (m *Manager) setRoot(root string) {
	m.mu.Lock()
	m.root = root
	m.mu.Unlock()
}

// authURL embeds token in an https clone URL using the convention of each
// host.
func authURL(raw, repoType, token string) (string, error) {
	if token == "" {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing repository URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", errors.New("access tokens require an http(s) repository URL")
	}
	switch repoType {
	case TypeGitLab:
		u.User = url.UserPassword("oauth2", token)
	case TypeBitbucket:
		u.User = url.UserPassword("x-token-auth", token)
	default:
		u.User = url.User(token)
	}
	return u.String(), nil
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "***")
}
