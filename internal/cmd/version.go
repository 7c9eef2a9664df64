package cmd

import (
	"context"
	"fmt"

	"github.com/kratos06/deepwiki-open/internal/server"
	"github.com/kratos06/deepwiki-open/internal/updater"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:     "version",
		GroupID: GroupConfig,
		Short:   "Print the version",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "deepwiki v%s\n", server.Version)
			if !check {
				return nil
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			result := updater.CheckVersion(ctx, server.Version)
			switch {
			case result.LatestVersion == "":
				fmt.Fprintln(out, "Could not determine the latest release")
			case result.UpdateAvailable:
				fmt.Fprintf(out, "Update available: v%s\n  Release: %s\n", result.LatestVersion, result.ReleaseURL)
			default:
				fmt.Fprintf(out, "Latest release: v%s\n", result.LatestVersion)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}
