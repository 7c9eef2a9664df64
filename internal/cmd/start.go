package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kratos06/deepwiki-open/internal/launcher"
	"github.com/spf13/cobra"
)

func newStartCmd(flags *globalFlags) *cobra.Command {
	var (
		mode  string
		port  int
		split bool
	)
	cmd := &cobra.Command{
		Use:     "start",
		GroupID: GroupServices,
		Short:   "Start DeepWiki services under a process supervisor",
		Long: `Start DeepWiki in web, mcp or both mode.

Mode "both" runs one process hosting the web API with the MCP integration
enabled. With --split it runs the web API and a standalone MCP server
(on port+1) as two independent processes instead.

Ctrl-C stops every child: first with SIGTERM, then SIGKILL after the
configured grace period.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closeLog, err := flags.load()
			if err != nil {
				return err
			}
			defer closeLog()

			if !cmd.Flags().Changed("mode") {
				mode = cfg.Launcher.Mode
			}
			m, err := launcher.ParseMode(mode)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = cfg.Launcher.Port
			}
			if err := positivePort(port); err != nil {
				return err
			}
			if !cmd.Flags().Changed("split") {
				split = cfg.Launcher.Split
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locating deepwiki binary: %w", err)
			}

			l := launcher.New(launcher.Options{
				Mode:       m,
				Port:       port,
				Split:      split,
				Grace:      cfg.Launcher.GracePeriod,
				Poll:       cfg.Launcher.PollInterval,
				Exe:        exe,
				ConfigPath: flags.resolveConfigPath(),
				LockPath:   cfg.LockPath(),
				Out:        cmd.ErrOrStderr(),
				Logger:     logger,
			})
			if err := l.Run(context.Background()); err != nil {
				return fmt.Errorf("starting DeepWiki: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "both", "services to start: web, mcp or both")
	cmd.Flags().IntVar(&port, "port", 8001, "port of the web API (or of the MCP server in mcp mode)")
	cmd.Flags().BoolVar(&split, "split", false, "in both mode, run web and MCP as two processes")
	return cmd
}
