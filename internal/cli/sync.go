package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tilde-sec/threatsift/internal/repo"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Clone or fast-forward the configured corpus repository",
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Repository.SourceURL == "" {
		return fmt.Errorf("repository.source_url is not configured")
	}

	syncer := repo.NewSyncer()
	result, err := syncer.Sync(context.Background(), cfg.Repository.SourceURL, cfg.Repository.LocalPath, cfg.Repository.Branch)
	if err != nil {
		return err
	}

	switch {
	case result.Cloned:
		fmt.Printf("Cloned %s at %s\n", cfg.Repository.SourceURL, result.CommitHash)
	case result.Updated:
		fmt.Printf("Updated to %s\n", result.CommitHash)
	default:
		fmt.Printf("Already up to date at %s\n", result.CommitHash)
	}
	return nil
}
