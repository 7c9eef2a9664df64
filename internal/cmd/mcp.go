package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kratos06/deepwiki-open/internal/config"
	"github.com/kratos06/deepwiki-open/internal/dispatch"
	"github.com/kratos06/deepwiki-open/internal/server"
	"github.com/kratos06/deepwiki-open/internal/updater"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	var (
		transport string
		port      int
	)
	cmd := &cobra.Command{
		Use:     "mcp",
		GroupID: GroupServices,
		Short:   "Run the standalone MCP server",
		Long: `Run the DeepWiki MCP server on its own.

Transports:
  stdio  for MCP clients that spawn the server (the default)
  http   streamable HTTP at http://localhost:<port>/mcp
  sse    server-sent events at http://localhost:<port>/sse

Logs and the catalogue go to stderr; stdout carries only the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closeLog, err := flags.load()
			if err != nil {
				return err
			}
			defer closeLog()
			if cmd.Flags().Changed("transport") {
				cfg.MCP.Transport = strings.ToLower(transport)
			}
			if cmd.Flags().Changed("port") {
				cfg.MCP.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			comp, err := server.New(server.Deps{Config: cfg, Logger: logger})
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer comp.Close()

			printCatalogue(cmd.ErrOrStderr(), comp.Dispatcher.Catalogue())

			ctx, stop := signalContext(context.Background(), logger)
			defer stop()

			// Best effort; prints to stderr so stdio stays clean.
			go checkForUpdates(ctx, cmd.ErrOrStderr())

			return serveMCP(ctx, cfg, comp.MCP, logger)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", config.TransportStdio, "stdio, http or sse")
	cmd.Flags().IntVar(&port, "port", 8002, "listen port for the http and sse transports")
	return cmd
}

func serveMCP(ctx context.Context, cfg *config.Config, s *mcpserver.MCPServer, logger *slog.Logger) error {
	addr := fmt.Sprintf(":%d", cfg.MCP.Port)
	switch cfg.MCP.Transport {
	case config.TransportStdio:
		logger.Info("mcp server listening", "transport", "stdio")
		stdio := mcpserver.NewStdioServer(s)
		stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
		err := stdio.Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("serving stdio: %w", err)
		}
		return nil

	case config.TransportHTTP:
		hs := mcpserver.NewStreamableHTTPServer(s, mcpserver.WithEndpointPath("/mcp"))
		logger.Info("mcp server listening", "transport", "http", "url", fmt.Sprintf("http://localhost:%d/mcp", cfg.MCP.Port))
		return runListener(ctx, logger, func() error { return hs.Start(addr) }, hs.Shutdown)

	case config.TransportSSE:
		ss := mcpserver.NewSSEServer(s, mcpserver.WithBaseURL(fmt.Sprintf("http://localhost:%d", cfg.MCP.Port)))
		logger.Info("mcp server listening", "transport", "sse", "url", fmt.Sprintf("http://localhost:%d/sse", cfg.MCP.Port))
		return runListener(ctx, logger, func() error { return ss.Start(addr) }, ss.Shutdown)

	default:
		return fmt.Errorf("unknown transport %q", cfg.MCP.Transport)
	}
}

// runListener runs start until ctx ends, then calls shutdown.
func runListener(ctx context.Context, logger *slog.Logger, start func() error, shutdown func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- start() }()

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving mcp: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		logger.Warn("mcp shutdown incomplete", "error", err)
	}
	return nil
}

// printCatalogue writes the startup banner listing every operation.
func printCatalogue(w io.Writer, cat dispatch.Catalogue) {
	fmt.Fprintf(w, "DeepWiki MCP server v%s\n", server.Version)
	section := func(title string, entries []dispatch.Entry) {
		fmt.Fprintf(w, "%s:\n", title)
		for _, e := range entries {
			fmt.Fprintf(w, "  - %s\n", e.Name)
		}
	}
	section("Tools", cat.Tools)
	section("Resources", cat.Resources)
	section("Prompts", cat.Prompts)
}

// checkForUpdates prints a notice when a newer release exists.
func checkForUpdates(ctx context.Context, w io.Writer) {
	result := updater.CheckVersion(ctx, server.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(w, "Update available: v%s -> v%s\n  Release: %s\n",
			result.CurrentVersion, result.LatestVersion, result.ReleaseURL)
	}
}
