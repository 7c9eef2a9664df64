// Package logging configures the process-wide slog logger.
//
// Every log line goes to stderr. Stdout belongs to the MCP stdio transport
// and must never carry diagnostics.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kratos06/deepwiki-open/internal/config"
	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Setup installs a default slog logger built from cfg. The returned
// function closes the optional log file and is always safe to call.
func Setup(cfg config.LogConfig) (*slog.Logger, func(), error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, noop, err
	}

	var w io.Writer = os.Stderr
	color := term.IsTerminal(int(os.Stderr.Fd()))
	closeFn := noop
	if cfg.File != "" {
		path := config.ExpandHome(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, noop, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, noop, fmt.Errorf("opening log file %s: %w", path, err)
		}
		w = io.MultiWriter(os.Stderr, f)
		// Escape codes would end up in the file.
		color = false
		closeFn = func() { _ = f.Close() }
	}

	logger, err := New(w, level, cfg.Format, color)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

// New builds a logger writing to w. Format "text" uses a human-oriented
// handler, colored when color is set; "json" emits one object per line.
func New(w io.Writer, level slog.Level, format string, color bool) (*slog.Logger, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02 15:04:05.000",
			NoColor:    !color,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (use text or json)", format)
	}
}

// ParseLevel maps a config level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noop() {}
