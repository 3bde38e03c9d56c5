package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tilde-sec/threatsift/internal/pipeline"
	"github.com/tilde-sec/threatsift/internal/store"
	"github.com/tilde-sec/threatsift/internal/telemetry"
)

var (
	forceFlag    bool
	skipSyncFlag bool
	limitFlag    int
	quietFlag    bool
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest the configured corpus repository",
	Long: `Ingest syncs the configured repository, scans it for markdown
documents, skips content already stored (unless --force), and runs the
extraction pipeline with bounded concurrency.

Examples:
  # Incremental ingest of the configured repository
  threatsift ingest

  # Reprocess everything, even unchanged files
  threatsift ingest --force

  # Ingest the local checkout without contacting the remote
  threatsift ingest --skip-sync

  # Only process the first 50 changed files
  threatsift ingest --limit 50
`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Reprocess files whose content is already stored")
	ingestCmd.Flags().BoolVar(&skipSyncFlag, "skip-sync", false, "Skip the git sync step")
	ingestCmd.Flags().IntVar(&limitFlag, "limit", 0, "Process at most this many files (0 = no limit)")
	ingestCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Disable progress bars and non-error output")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, cancelling ingest...")
		cancel()
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if skipSyncFlag {
		cfg.Repository.SyncOnStart = false
	}

	warehouse, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	defer warehouse.Close()

	orch := pipeline.NewOrchestrator(cfg, warehouse, quietFlag)
	timer := telemetry.StartTimer("ingest")

	if cfg.Repository.SyncOnStart && cfg.Repository.SourceURL != "" {
		if _, err := orch.Sync(ctx); err != nil {
			return err
		}
		timer.Checkpoint("sync")
	}

	files, err := orch.ScanChanged(ctx, nil, forceFlag)
	if err != nil {
		return err
	}
	timer.Checkpoint("scan")
	if limitFlag > 0 && len(files) > limitFlag {
		files = files[:limitFlag]
	}

	report, err := orch.IngestFiles(ctx, files, cfg.Repository.SourceURL)
	if err != nil {
		return err
	}
	timer.FinishWithCount(int(report.Stats.FilesProcessed))

	printIngestReport(report)
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d of %d files failed", len(report.Failures), len(files))
	}
	return nil
}

func printIngestReport(report *pipeline.RunReport) {
	stats := report.Stats
	fmt.Printf("Processed %d files (%d failed) in %s\n",
		stats.FilesProcessed, stats.FilesFailed, stats.Duration.Round(time.Millisecond))
	fmt.Printf("  documents created:   %d\n", stats.DocumentsCreated)
	fmt.Printf("  crypto addresses:    %d\n", stats.CryptoAddresses)
	fmt.Printf("  incidents:           %d\n", stats.Incidents)
	fmt.Printf("  indicators:          %d\n", stats.Iocs)
	for _, failure := range report.Failures {
		fmt.Fprintf(os.Stderr, "  failed: %s: %v\n", failure.Path, failure.Err)
	}
}
