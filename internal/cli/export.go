package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tilde-sec/threatsift/internal/exporter"
	"github.com/tilde-sec/threatsift/internal/store"
)

var (
	exportDirFlag  string
	exportRepoFlag string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export documents, entities and the link graph as JSON",
	Long: `Export writes the warehouse contents to a directory of JSON
files: documents, crypto addresses, incidents, indicators, the entity
co-occurrence graph, and a manifest.

Examples:
  threatsift export --out ./export
  threatsift export --out ./export --repository https://github.com/org/reports.git
`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportDirFlag, "out", "o", "./export", "Output directory")
	exportCmd.Flags().StringVar(&exportRepoFlag, "repository", "", "Only export documents from this repository URL")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	warehouse, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer warehouse.Close()

	manifest, err := exporter.New(warehouse).Export(context.Background(), exportDirFlag, exportRepoFlag)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d documents, %d addresses, %d incidents, %d indicators to %s\n",
		manifest.Counts["documents"], manifest.Counts["addresses"],
		manifest.Counts["incidents"], manifest.Counts["iocs"], exportDirFlag)
	return nil
}
