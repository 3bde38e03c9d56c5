package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tilde-sec/threatsift/internal/pipeline"
	"github.com/tilde-sec/threatsift/internal/store"
)

var createSchemaFlag bool

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the warehouse schema",
	Long: `Verify checks that every warehouse table exists. With
--create-schema, missing tables are created first.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&createSchemaFlag, "create-schema", false, "Create missing tables before verifying")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	warehouse, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer warehouse.Close()

	orch := pipeline.NewOrchestrator(cfg, warehouse, true)
	if err := orch.VerifySchema(context.Background(), createSchemaFlag); err != nil {
		return err
	}
	fmt.Println("Schema verified.")
	return nil
}
