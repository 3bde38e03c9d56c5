package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tilde-sec/threatsift/internal/config"
	"github.com/tilde-sec/threatsift/internal/models"
	"github.com/tilde-sec/threatsift/internal/repo"
)

// Warehouse is the storage surface the pipeline writes to and checks.
// *store.Store satisfies it.
type Warehouse interface {
	InsertDocument(ctx context.Context, doc *models.Document, addresses []*models.CryptoAddress, incidents []*models.Incident, iocs []*models.Ioc) (bool, error)
	DocumentHashes(ctx context.Context) (map[string]struct{}, error)
	Counts(ctx context.Context) (map[string]int64, error)
	CreateSchema(ctx context.Context) error
	VerifySchema(ctx context.Context) error
}

// FileFailure pairs a failed file with its error. Per-file errors are
// reported, never fatal to the run.
type FileFailure struct {
	Path string
	Err  error
}

// RunReport is the outcome of one pipeline run.
type RunReport struct {
	Stats    *Stats
	Failures []FileFailure
}

// Orchestrator drives a full ingestion run.
type Orchestrator struct {
	cfg       *config.Config
	warehouse Warehouse
	processor *Processor
	syncer    *repo.Syncer
	quiet     bool
}

func NewOrchestrator(cfg *config.Config, warehouse Warehouse, quiet bool) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		warehouse: warehouse,
		processor: NewProcessor(cfg.Pipeline, cfg.Extraction),
		syncer:    repo.NewSyncer(),
		quiet:     quiet,
	}
}

// Run executes the full pipeline: optional sync, scan, change
// detection, bounded-concurrency processing, batched insertion.
// force reprocesses files whose content is already stored.
func (o *Orchestrator) Run(ctx context.Context, force bool) (*RunReport, error) {
	if o.cfg.Repository.SyncOnStart && o.cfg.Repository.SourceURL != "" {
		res, err := o.syncer.Sync(ctx, o.cfg.Repository.SourceURL, o.cfg.Repository.LocalPath, o.cfg.Repository.Branch)
		if err != nil {
			return nil, err
		}
		slog.Info("repository synced", "commit", res.CommitHash, "cloned", res.Cloned, "updated", res.Updated)
	}

	files, err := o.scanFiles(ctx, nil, force)
	if err != nil {
		return nil, err
	}
	return o.IngestFiles(ctx, files, o.cfg.Repository.SourceURL)
}

// scanFiles discovers candidates and drops already-stored content
// unless force (or the config override) is set.
func (o *Orchestrator) scanFiles(ctx context.Context, subdirs []string, force bool) ([]repo.FileMeta, error) {
	scanner, err := repo.NewScanner(o.cfg.Repository.LocalPath, o.cfg.Pipeline.SkipPatterns, o.cfg.Pipeline.MaxFileSizeBytes())
	if err != nil {
		return nil, err
	}
	files, err := scanner.Scan(subdirs)
	if err != nil {
		return nil, err
	}

	force = force || o.cfg.Pipeline.ForceReprocess
	if force {
		return files, nil
	}

	known, err := o.warehouse.DocumentHashes(ctx)
	if err != nil {
		return nil, err
	}
	kept := repo.FilterByHash(files, known, false)
	slog.Info("change detection", "scanned", len(files), "changed", len(kept))
	return kept, nil
}

// ScanChanged exposes scan plus change detection for callers that cap
// or report the candidate set before processing.
func (o *Orchestrator) ScanChanged(ctx context.Context, subdirs []string, force bool) ([]repo.FileMeta, error) {
	return o.scanFiles(ctx, subdirs, force)
}

// IngestFiles processes the given files under the worker bound and
// inserts the results in batches. An empty set returns zeroed stats.
func (o *Orchestrator) IngestFiles(ctx context.Context, files []repo.FileMeta, repositoryURL string) (*RunReport, error) {
	tracker := NewTracker(len(files), o.quiet)
	if len(files) == 0 {
		return &RunReport{Stats: tracker.Finish()}, nil
	}

	var (
		mu       sync.Mutex
		results  []*Result
		failures []FileFailure
	)

	sem := semaphore.NewWeighted(int64(o.cfg.Pipeline.ParallelWorkers))
	g, gctx := errgroup.WithContext(ctx)

	for _, file := range files {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			result, err := o.processor.Process(gctx, file, repositoryURL)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("file failed", "path", file.RelativePath, "error", err)
				tracker.FileFailed()
				mu.Lock()
				failures = append(failures, FileFailure{Path: file.RelativePath, Err: err})
				mu.Unlock()
				return nil
			}

			tracker.FileProcessed(result.Document.FileSize)
			tracker.EntitiesExtracted(len(result.Addresses), len(result.Incidents), len(result.Iocs))
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failures = append(failures, o.insertResults(ctx, results, tracker)...)

	stats := tracker.Finish()
	slog.Info("pipeline finished",
		"processed", stats.FilesProcessed,
		"failed", stats.FilesFailed,
		"documents", stats.DocumentsCreated,
		"entities", stats.TotalEntities(),
		"bytes", stats.TotalBytes,
		"duration", stats.Duration,
		"files_per_sec", stats.FilesPerSecond(),
		"success_rate", stats.SuccessRate(),
	)
	return &RunReport{Stats: stats, Failures: failures}, nil
}

// insertResults writes results in configured batch sizes. Each file
// whose insert call succeeds counts as one created document; the
// store's idempotent insert decides whether a new row was written. An
// insert error is fatal to that file only and reclassifies it as
// failed.
func (o *Orchestrator) insertResults(ctx context.Context, results []*Result, tracker *Tracker) []FileFailure {
	var failures []FileFailure
	batchSize := o.cfg.Database.BatchSize
	for start := 0; start < len(results); start += batchSize {
		end := start + batchSize
		if end > len(results) {
			end = len(results)
		}
		for _, result := range results[start:end] {
			if _, err := o.warehouse.InsertDocument(ctx, result.Document, result.Addresses, result.Incidents, result.Iocs); err != nil {
				slog.Warn("insert failed", "path", result.Document.RelativePath, "error", err)
				tracker.InsertFailed()
				failures = append(failures, FileFailure{Path: result.Document.RelativePath, Err: err})
				continue
			}
			tracker.DocumentCreated()
		}
	}
	return failures
}

// VerifySchema checks warehouse schema health, creating tables first
// when requested.
func (o *Orchestrator) VerifySchema(ctx context.Context, createFirst bool) error {
	if createFirst {
		if err := o.warehouse.CreateSchema(ctx); err != nil {
			return err
		}
	}
	return o.warehouse.VerifySchema(ctx)
}

// WarehouseCounts returns per-table row counts.
func (o *Orchestrator) WarehouseCounts(ctx context.Context) (map[string]int64, error) {
	return o.warehouse.Counts(ctx)
}

// Sync synchronizes the configured repository without ingesting.
func (o *Orchestrator) Sync(ctx context.Context) (*repo.SyncResult, error) {
	return o.syncer.Sync(ctx, o.cfg.Repository.SourceURL, o.cfg.Repository.LocalPath, o.cfg.Repository.Branch)
}
