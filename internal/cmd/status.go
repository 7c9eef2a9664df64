package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kratos06/deepwiki-open/internal/logging"
	"github.com/kratos06/deepwiki-open/internal/server"
	"github.com/kratos06/deepwiki-open/internal/service"
	"github.com/spf13/cobra"
)

// statusTimeout bounds the request to a running web host.
const statusTimeout = 5 * time.Second

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:     "status",
		GroupID: GroupServices,
		Short:   "Show MCP service status and the operation catalogue",
		Long: `Query a running web host for its MCP status.

If no host answers, the catalogue this binary would serve is printed
instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closeLog, err := flags.load()
			if err != nil {
				return err
			}
			defer closeLog()
			if url == "" {
				url = fmt.Sprintf("http://localhost:%d", cfg.Web.Port)
			}
			out := cmd.OutOrStdout()

			info, err := fetchStatus(cmd.Context(), url)
			if err == nil {
				printInfo(out, info)
				return nil
			}
			fmt.Fprintf(out, "DeepWiki web host not reachable at %s (%v)\n\n", url, err)

			comp, err := server.New(server.Deps{Config: cfg, Logger: logging.Discard()})
			if err != nil {
				return err
			}
			defer comp.Close()
			printCatalogue(out, comp.Dispatcher.Catalogue())
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "base URL of the web host (default http://localhost:<web port>)")
	return cmd
}

func fetchStatus(ctx context.Context, baseURL string) (service.Info, error) {
	var body struct {
		MCPServer service.Info `json:"mcp_server"`
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/mcp/status", nil)
	if err != nil {
		return body.MCPServer, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return body.MCPServer, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return body.MCPServer, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return body.MCPServer, fmt.Errorf("decoding status: %w", err)
	}
	return body.MCPServer, nil
}

func printInfo(w io.Writer, info service.Info) {
	fmt.Fprintf(w, "MCP server: %s\n", info.State)
	fmt.Fprintf(w, "  running:     %t\n", info.Running)
	fmt.Fprintf(w, "  initialized: %t\n", info.Initialized)
	fmt.Fprintf(w, "  ready:       %t\n", info.Ready)
	if info.Note != "" {
		fmt.Fprintf(w, "  note: %s\n", info.Note)
	}
	list := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(w, "%s:\n", title)
		for _, it := range items {
			fmt.Fprintf(w, "  - %s\n", it)
		}
	}
	list("Tools", info.Tools)
	list("Resources", info.Resources)
	list("Prompts", info.Prompts)
}
