package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tilde-sec/threatsift/internal/service"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Serve starts the Model Context Protocol server that exposes the
ingestion, search, stats, health and entity-graph tools to LLM clients
over stdio.

Example:
  threatsift serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	srv, err := service.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer srv.Close()

	return srv.Serve(context.Background())
}
