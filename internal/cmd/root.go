// Package cmd provides the deepwiki command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/kratos06/deepwiki-open/internal/config"
	"github.com/kratos06/deepwiki-open/internal/logging"
	"github.com/kratos06/deepwiki-open/internal/server"
	"github.com/kratos06/deepwiki-open/internal/supervisor"
	"github.com/spf13/cobra"
)

// Command group IDs used to organize help output.
const (
	GroupServices = "services"
	GroupConfig   = "config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:     "deepwiki",
		Short:   "DeepWiki - code repository question answering over HTTP and MCP",
		Version: server.Version,
		Long: `DeepWiki answers questions about code repositories.

It serves a web API and an MCP server (tools, resources and prompts) that
can run in one process, in two supervised processes, or on their own.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "",
		"config file (.yaml or .toml); default $DEEPWIKI_CONFIG or ~/.deepwiki/config.yaml")

	root.AddGroup(
		&cobra.Group{ID: GroupServices, Title: "Services:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration:"},
	)
	root.SetHelpCommandGroupID(GroupConfig)
	root.SetCompletionCommandGroupID(GroupConfig)

	root.AddCommand(
		newStartCmd(flags),
		newWebCmd(flags),
		newMCPCmd(flags),
		newStatusCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		// Already printed by cobra.
		return 1
	}
	return 0
}

// resolveConfigPath picks the explicit flag, then $DEEPWIKI_CONFIG, then
// ~/.deepwiki/config.yaml if it exists. An empty result means defaults and
// environment only.
func (f *globalFlags) resolveConfigPath() string {
	if f.configPath != "" {
		return config.ExpandHome(f.configPath)
	}
	if p := os.Getenv("DEEPWIKI_CONFIG"); p != "" {
		return config.ExpandHome(p)
	}
	p := defaultConfigPath()
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

func defaultConfigPath() string {
	return filepath.Join(config.ExpandHome("~/.deepwiki"), "config.yaml")
}

// load reads the configuration and sets up logging. The returned cleanup
// closes the log file, if any.
func (f *globalFlags) load() (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(f.resolveConfigPath())
	if err != nil {
		return nil, nil, nil, err
	}
	logger, closeLog, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("setting up logging: %w", err)
	}
	return cfg, logger, closeLog, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM. Signals
// only enqueue; a single consumer cancels the context.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	queue := supervisor.NewShutdownQueue(logger)
	stopWatch := queue.Watch(ctx, os.Interrupt, syscall.SIGTERM)
	go queue.Run(ctx, func(sig os.Signal) {
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	})
	return ctx, func() {
		stopWatch()
		cancel()
	}
}

// positivePort rejects ports a listener could not bind.
func positivePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	return nil
}
