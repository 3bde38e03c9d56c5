// Package service is the control plane behind the MCP server: a shared
// state triple of configuration, repository registry, and store handle,
// each guarded by a timeout-bounded lock.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tilde-sec/threatsift/internal/config"
	"github.com/tilde-sec/threatsift/internal/errs"
	"github.com/tilde-sec/threatsift/internal/links"
	"github.com/tilde-sec/threatsift/internal/models"
	"github.com/tilde-sec/threatsift/internal/pipeline"
	"github.com/tilde-sec/threatsift/internal/repo"
	"github.com/tilde-sec/threatsift/internal/store"
)

// ingestCap bounds how many files one ingest call will process, keeping
// the tool responsive on large repositories.
const ingestCap = 100

// timedLock is a mutex whose Acquire gives up after a deadline instead
// of blocking forever.
type timedLock struct {
	name string
	ch   chan struct{}
}

func newTimedLock(name string) *timedLock {
	return &timedLock{name: name, ch: make(chan struct{}, 1)}
}

func (l *timedLock) acquire(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-timer.C:
		return &errs.LockTimeoutError{Resource: l.name, Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *timedLock) release() { <-l.ch }

// State holds the service's shared mutable state. The lock acquisition
// order is always configuration, then registry, then store handle; no
// public operation acquires them out of that order.
type State struct {
	lockTimeout time.Duration

	configLock *timedLock
	cfg        *config.Config

	registryLock *timedLock
	registry     map[string]*models.RepositoryMetadata
	registryPath string

	storeLock *timedLock
	warehouse *store.Store

	// sync is swappable so tests ingest without a git binary.
	sync func(ctx context.Context, url, localPath, branch string) (*repo.SyncResult, error)
}

// NewState builds the service state and loads the persisted registry.
// A missing registry file starts an empty registry.
func NewState(cfg *config.Config) (*State, error) {
	registry, err := loadRegistry(cfg.Service.RegistryPath)
	if err != nil {
		return nil, err
	}
	syncer := repo.NewSyncer()
	return &State{
		lockTimeout:  cfg.Service.LockTimeout,
		configLock:   newTimedLock("configuration"),
		cfg:          cfg,
		registryLock: newTimedLock("registry"),
		registry:     registry,
		registryPath: cfg.Service.RegistryPath,
		storeLock:    newTimedLock("store"),
		sync:         syncer.Sync,
	}, nil
}

// RepoKey derives the registry key for a repository URL: the last path
// segment with any ".git" suffix removed.
func RepoKey(url string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(url), "/")
	if trimmed == "" {
		return "", errs.Validation("url", "repository url is empty")
	}
	segment := trimmed
	if idx := strings.LastIndexAny(trimmed, "/:"); idx >= 0 {
		segment = trimmed[idx+1:]
	}
	segment = strings.TrimSuffix(segment, ".git")
	if segment == "" {
		return "", errs.Validation("url", "cannot derive repository key from %q", url)
	}
	return segment, nil
}

// configSnapshot copies the configuration under its lock.
func (s *State) configSnapshot(ctx context.Context) (config.Config, error) {
	if err := s.configLock.acquire(ctx, s.lockTimeout); err != nil {
		return config.Config{}, err
	}
	defer s.configLock.release()
	return *s.cfg, nil
}

// Warehouse returns the store handle, connecting on first use. The nil
// check and the connect both happen inside the critical section so only
// one connection is ever made.
func (s *State) Warehouse(ctx context.Context) (*store.Store, error) {
	dbCfg, err := s.databaseConfig(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.storeLock.acquire(ctx, s.lockTimeout); err != nil {
		return nil, err
	}
	defer s.storeLock.release()
	if s.warehouse == nil {
		warehouse, err := store.Open(dbCfg)
		if err != nil {
			return nil, err
		}
		s.warehouse = warehouse
	}
	return s.warehouse, nil
}

func (s *State) databaseConfig(ctx context.Context) (config.DatabaseConfig, error) {
	if err := s.configLock.acquire(ctx, s.lockTimeout); err != nil {
		return config.DatabaseConfig{}, err
	}
	defer s.configLock.release()
	return s.cfg.Database, nil
}

// Close releases the store handle if one was opened.
func (s *State) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()
	if err := s.storeLock.acquire(ctx, s.lockTimeout); err != nil {
		return err
	}
	defer s.storeLock.release()
	if s.warehouse == nil {
		return nil
	}
	err := s.warehouse.Close()
	s.warehouse = nil
	return err
}

// IngestReport is the result of an ingest or update operation.
type IngestReport struct {
	Repository     string   `json:"repository"`
	Key            string   `json:"key"`
	FilesScanned   int      `json:"files_scanned"`
	FilesProcessed int      `json:"files_processed"`
	FilesFailed    int      `json:"files_failed"`
	FilesCapped    bool     `json:"files_capped"`
	Documents      int      `json:"documents_created"`
	Entities       int      `json:"entities_extracted"`
	Failures       []string `json:"failures,omitempty"`
	CommitHash     string   `json:"commit_hash,omitempty"`
}

// Ingest syncs the repository, scans (optionally restricted to
// subdirectories), ingests at most ingestCap files, and upserts the
// registry entry. Per-file failures are reported in the result, never
// returned as the operation error.
func (s *State) Ingest(ctx context.Context, url, ref string, subdirs []string, force bool) (*IngestReport, error) {
	key, err := RepoKey(url)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	branch := cfg.Repository.Branch
	if ref != "" {
		branch = ref
	}
	localPath := filepath.Join(cfg.Repository.LocalPath, key)

	syncRes, err := s.sync(ctx, url, localPath, branch)
	if err != nil {
		return nil, err
	}

	warehouse, err := s.Warehouse(ctx)
	if err != nil {
		return nil, err
	}

	runCfg := cfg
	runCfg.Repository.SourceURL = url
	runCfg.Repository.LocalPath = localPath
	runCfg.Repository.Branch = branch
	orch := pipeline.NewOrchestrator(&runCfg, warehouse, true)

	files, err := orch.ScanChanged(ctx, subdirs, force)
	if err != nil {
		return nil, err
	}
	scanned := len(files)
	capped := scanned > ingestCap
	if capped {
		files = files[:ingestCap]
	}

	report, err := orch.IngestFiles(ctx, files, url)
	if err != nil {
		return nil, err
	}

	meta := &models.RepositoryMetadata{
		URL:            url,
		Branch:         branch,
		CommitHash:     syncRes.CommitHash,
		LocalPath:      localPath,
		Subdirectories: subdirs,
		FileCount:      int(report.Stats.FilesProcessed),
		IngestedAt:     time.Now().UTC(),
	}
	if err := s.upsertMetadata(ctx, key, meta); err != nil {
		return nil, err
	}

	out := &IngestReport{
		Repository:     url,
		Key:            key,
		FilesScanned:   scanned,
		FilesProcessed: int(report.Stats.FilesProcessed),
		FilesFailed:    int(report.Stats.FilesFailed),
		FilesCapped:    capped,
		Documents:      int(report.Stats.DocumentsCreated),
		Entities:       int(report.Stats.TotalEntities()),
		CommitHash:     syncRes.CommitHash,
	}
	for _, failure := range report.Failures {
		out.Failures = append(out.Failures, fmt.Sprintf("%s: %v", failure.Path, failure.Err))
	}
	return out, nil
}

func (s *State) upsertMetadata(ctx context.Context, key string, meta *models.RepositoryMetadata) error {
	if err := s.registryLock.acquire(ctx, s.lockTimeout); err != nil {
		return err
	}
	defer s.registryLock.release()
	s.registry[key] = meta
	return saveRegistry(s.registryPath, s.registry)
}

// List returns a sorted snapshot of the registry.
func (s *State) List(ctx context.Context) ([]*models.RepositoryMetadata, error) {
	if err := s.registryLock.acquire(ctx, s.lockTimeout); err != nil {
		return nil, err
	}
	defer s.registryLock.release()
	keys := make([]string, 0, len(s.registry))
	for key := range s.registry {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]*models.RepositoryMetadata, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.registry[key])
	}
	return out, nil
}

// RemoveReport is the result of removing a repository.
type RemoveReport struct {
	Key              string `json:"key"`
	DocumentsRemoved int64  `json:"documents_removed"`
	StoreDeleteError string `json:"store_delete_error,omitempty"`
}

// Remove deletes the registry entry first, then best-effort deletes the
// repository's documents from the store. A failed store delete leaves
// orphaned rows rather than resurrecting the registry entry.
func (s *State) Remove(ctx context.Context, identifier string) (*RemoveReport, error) {
	key, err := RepoKey(identifier)
	if err != nil {
		return nil, err
	}

	var url string
	lookup := func() error {
		if err := s.registryLock.acquire(ctx, s.lockTimeout); err != nil {
			return err
		}
		defer s.registryLock.release()
		meta, ok := s.registry[key]
		if !ok {
			return errs.Validation("identifier", "repository %q is not registered", key)
		}
		url = meta.URL
		delete(s.registry, key)
		return saveRegistry(s.registryPath, s.registry)
	}
	if err := lookup(); err != nil {
		return nil, err
	}

	report := &RemoveReport{Key: key}
	warehouse, err := s.Warehouse(ctx)
	if err != nil {
		report.StoreDeleteError = err.Error()
		return report, nil
	}
	removed, err := warehouse.DeleteRepository(ctx, url)
	if err != nil {
		report.StoreDeleteError = err.Error()
		return report, nil
	}
	report.DocumentsRemoved = removed
	return report, nil
}

// Update re-ingests a registered repository with force set, reusing its
// recorded subdirectory filter and optionally overriding the ref.
func (s *State) Update(ctx context.Context, identifier, newRef string) (*IngestReport, error) {
	key, err := RepoKey(identifier)
	if err != nil {
		return nil, err
	}

	var meta models.RepositoryMetadata
	lookup := func() error {
		if err := s.registryLock.acquire(ctx, s.lockTimeout); err != nil {
			return err
		}
		defer s.registryLock.release()
		existing, ok := s.registry[key]
		if !ok {
			return errs.Validation("identifier", "repository %q is not registered", key)
		}
		meta = *existing
		return nil
	}
	if err := lookup(); err != nil {
		return nil, err
	}

	ref := meta.Branch
	if newRef != "" {
		ref = newRef
	}
	return s.Ingest(ctx, meta.URL, ref, meta.Subdirectories, true)
}

// Search runs a semantic or keyword query against the warehouse.
func (s *State) Search(ctx context.Context, query, mode string, limit int, repositoryURL string) ([]*models.SearchResult, error) {
	warehouse, err := s.Warehouse(ctx)
	if err != nil {
		return nil, err
	}
	switch mode {
	case "", "semantic":
		return warehouse.SearchSemantic(ctx, query, limit, repositoryURL)
	case "keyword":
		return warehouse.SearchKeyword(query, limit, repositoryURL)
	default:
		return nil, errs.Validation("mode", "unknown search mode %q (want semantic or keyword)", mode)
	}
}

// StatsReport combines store counts with the registry size.
type StatsReport struct {
	Repositories int              `json:"repositories"`
	Tables       map[string]int64 `json:"tables"`
	Vectors      int              `json:"vectors"`
}

// Stats reports per-table document and entity counts.
func (s *State) Stats(ctx context.Context) (*StatsReport, error) {
	repos, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	warehouse, err := s.Warehouse(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := warehouse.Counts(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsReport{
		Repositories: len(repos),
		Tables:       counts,
		Vectors:      warehouse.VectorCount(),
	}, nil
}

// VerifySchema checks the warehouse schema, optionally creating missing
// tables first.
func (s *State) VerifySchema(ctx context.Context, createIfMissing bool) error {
	warehouse, err := s.Warehouse(ctx)
	if err != nil {
		return err
	}
	if createIfMissing {
		if err := warehouse.CreateSchema(ctx); err != nil {
			return err
		}
	}
	return warehouse.VerifySchema(ctx)
}

// Related rebuilds the entity link graph from stored entities and walks
// it from the named entity.
func (s *State) Related(ctx context.Context, value string, depth, maxResults int) ([]links.RelatedEntity, error) {
	warehouse, err := s.Warehouse(ctx)
	if err != nil {
		return nil, err
	}
	addresses, err := warehouse.Addresses(ctx)
	if err != nil {
		return nil, err
	}
	incidents, err := warehouse.Incidents(ctx)
	if err != nil {
		return nil, err
	}
	iocs, err := warehouse.Iocs(ctx)
	if err != nil {
		return nil, err
	}
	graph := links.BuildFromEntities(addresses, incidents, iocs)
	return graph.Related(value, depth, maxResults)
}
