package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tilde-sec/threatsift/internal/store"
)

var confirmFlag bool

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate every warehouse table and index",
	Long: `Reset deletes all stored documents, entities, vectors and the
full-text index. It refuses to run without --confirm.`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVar(&confirmFlag, "confirm", false, "Actually perform the reset")
}

func runReset(cmd *cobra.Command, args []string) error {
	if !confirmFlag {
		return fmt.Errorf("reset is destructive; re-run with --confirm")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	warehouse, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer warehouse.Close()

	if err := warehouse.Reset(context.Background()); err != nil {
		return err
	}
	fmt.Println("Warehouse reset.")
	return nil
}
