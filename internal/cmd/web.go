package cmd

import (
	"context"

	"github.com/kratos06/deepwiki-open/internal/server"
	"github.com/kratos06/deepwiki-open/internal/service"
	"github.com/kratos06/deepwiki-open/internal/web"
	"github.com/kratos06/deepwiki-open/internal/wikicache"
	"github.com/spf13/cobra"
)

func newWebCmd(flags *globalFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:     "web",
		GroupID: GroupServices,
		Short:   "Run the web API, with the MCP integration unless disabled",
		Long: `Run the DeepWiki web API.

When ENABLE_MCP_SERVER is true (the default) the MCP server is started
with the host and served over streamable HTTP at /mcp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closeLog, err := flags.load()
			if err != nil {
				return err
			}
			defer closeLog()
			if cmd.Flags().Changed("port") {
				cfg.Web.Port = port
			}
			if err := positivePort(cfg.Web.Port); err != nil {
				return err
			}

			// The host owns the wiki cache so it stays available to the
			// HTTP API while the MCP service is stopped.
			deps := server.Deps{Config: cfg, Logger: logger}
			store, err := wikicache.New(wikicache.Config{
				Path:            cfg.WikiCachePath(),
				DefaultLanguage: cfg.Engine.DefaultLanguage,
			})
			if err != nil {
				logger.Warn("wiki cache disabled", "path", cfg.WikiCachePath(), "error", err)
			} else {
				defer store.Close()
				deps.WikiCache = store
			}

			svc := service.Global(server.Resolver(deps), logger)
			host, err := web.New(web.Options{Config: cfg, Service: svc, Wiki: deps.WikiCache, Logger: logger})
			if err != nil {
				return err
			}

			ctx, stop := signalContext(context.Background(), logger)
			defer stop()
			return host.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8001, "listen port (default from config or $PORT)")
	return cmd
}
