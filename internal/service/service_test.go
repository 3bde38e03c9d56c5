package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilde-sec/threatsift/internal/config"
	"github.com/tilde-sec/threatsift/internal/errs"
	"github.com/tilde-sec/threatsift/internal/models"
	"github.com/tilde-sec/threatsift/internal/repo"
	"github.com/tilde-sec/threatsift/internal/store"
	"github.com/tilde-sec/threatsift/internal/telemetry"
)

const reportDoc = `# Harmony Bridge Incident

## Overview

Attackers drained funds to bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh
and staged payloads on evil-updates.com before laundering began.

## Harmony Horizon Bridge

- Date: 2022-06-23
- Victim: Harmony Horizon Bridge
- Amount: $100 million

Stolen via compromised multisig keys after a phishing campaign.
`

const followupDoc = `# Laundering Follow-up

Funds moved through mixers; see prior reporting for indicators.
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Repository.LocalPath = filepath.Join(base, "checkouts")
	cfg.Database.DataDir = filepath.Join(base, "data")
	cfg.Database.Embedding.Dimensions = 32
	cfg.Service.RegistryPath = filepath.Join(base, "data", "repositories.json")
	cfg.Pipeline.ParallelWorkers = 2
	return cfg
}

// fakeSync writes the given files into the checkout instead of running
// git.
func fakeSync(files map[string]string) func(ctx context.Context, url, localPath, branch string) (*repo.SyncResult, error) {
	return func(ctx context.Context, url, localPath, branch string) (*repo.SyncResult, error) {
		for rel, content := range files {
			path := filepath.Join(localPath, rel)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return nil, err
			}
		}
		return &repo.SyncResult{Cloned: true, CommitHash: "abc123def"}, nil
	}
}

func newTestState(t *testing.T, files map[string]string) *State {
	t.Helper()
	state, err := NewState(testConfig(t))
	require.NoError(t, err)
	state.sync = fakeSync(files)
	t.Cleanup(func() { _ = state.Close() })
	return state
}

func TestRepoKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want string
	}{
		{"https://github.com/example/lazarus-reports.git", "lazarus-reports"},
		{"https://github.com/example/lazarus-reports", "lazarus-reports"},
		{"https://github.com/example/lazarus-reports/", "lazarus-reports"},
		{"git@github.com:example/reports.git", "reports"},
		{"reports", "reports"},
	}
	for _, tc := range cases {
		key, err := RepoKey(tc.url)
		require.NoError(t, err, tc.url)
		assert.Equal(t, tc.want, key, tc.url)
	}

	_, err := RepoKey("")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = RepoKey("///")
	assert.Error(t, err)
}

func TestLockAcquisitionTimesOut(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Service.LockTimeout = 50 * time.Millisecond
	state, err := NewState(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { state.lockTimeout = time.Second; _ = state.Close() })

	// Occupy the registry lock so List cannot acquire it.
	state.registryLock.ch <- struct{}{}
	defer func() { <-state.registryLock.ch }()

	_, err = state.List(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrLockTimeout)

	var lockErr *errs.LockTimeoutError
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, "registry", lockErr.Resource)
}

func TestIngestRegistersRepository(t *testing.T) {
	t.Parallel()

	state := newTestState(t, map[string]string{
		"lazarus_group/harmony.md": reportDoc,
		"general/followup.md":      followupDoc,
	})
	ctx := context.Background()

	report, err := state.Ingest(ctx, "https://github.com/example/lazarus-reports.git", "", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "lazarus-reports", report.Key)
	assert.Equal(t, 2, report.FilesScanned)
	assert.Equal(t, 2, report.FilesProcessed)
	assert.Equal(t, 2, report.Documents)
	assert.Zero(t, report.FilesFailed)
	assert.False(t, report.FilesCapped)
	assert.Equal(t, "abc123def", report.CommitHash)
	assert.Greater(t, report.Entities, 0)

	repos, err := state.List(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "https://github.com/example/lazarus-reports.git", repos[0].URL)
	assert.Equal(t, 2, repos[0].FileCount)

	// The registry is rewritten on every mutation.
	saved, err := loadRegistry(state.registryPath)
	require.NoError(t, err)
	assert.Contains(t, saved, "lazarus-reports")

	// Unchanged content is skipped on the next call.
	again, err := state.Ingest(ctx, "https://github.com/example/lazarus-reports.git", "", nil, false)
	require.NoError(t, err)
	assert.Zero(t, again.FilesProcessed)
	assert.Zero(t, again.Documents)
}

func TestIngestCapsFilesPerCall(t *testing.T) {
	t.Parallel()

	files := make(map[string]string, ingestCap+5)
	for i := 0; i < ingestCap+5; i++ {
		files[fmt.Sprintf("reports/report-%03d.md", i)] = fmt.Sprintf("# Report %03d\n\nUnique body %03d.\n", i, i)
	}
	state := newTestState(t, files)

	report, err := state.Ingest(context.Background(), "https://example.com/bulk.git", "", nil, false)
	require.NoError(t, err)
	assert.Equal(t, ingestCap+5, report.FilesScanned)
	assert.Equal(t, ingestCap, report.FilesProcessed)
	assert.True(t, report.FilesCapped)
}

func TestIngestReportsPerFileFailures(t *testing.T) {
	t.Parallel()

	state := newTestState(t, map[string]string{
		"good.md": reportDoc,
		"bad.md":  "",
	})

	report, err := state.Ingest(context.Background(), "https://example.com/mixed.git", "", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesProcessed)
	assert.Equal(t, 1, report.FilesFailed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "bad.md")
}

func TestIngestSubdirectoryFilter(t *testing.T) {
	t.Parallel()

	state := newTestState(t, map[string]string{
		"lazarus_group/harmony.md": reportDoc,
		"general/followup.md":      followupDoc,
	})

	report, err := state.Ingest(context.Background(), "https://example.com/scoped.git", "", []string{"lazarus_group"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesProcessed)

	repos, err := state.List(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, []string{"lazarus_group"}, repos[0].Subdirectories)
}

func TestUpdateForcesReingest(t *testing.T) {
	t.Parallel()

	state := newTestState(t, map[string]string{
		"lazarus_group/harmony.md": reportDoc,
	})
	ctx := context.Background()

	_, err := state.Ingest(ctx, "https://example.com/reports.git", "", nil, false)
	require.NoError(t, err)

	report, err := state.Update(ctx, "https://example.com/reports.git", "")
	require.NoError(t, err)
	// Force reprocesses every file; the reprocessed document counts
	// even though the store keeps its deduplicated row.
	assert.Equal(t, 1, report.FilesProcessed)
	assert.Equal(t, 1, report.Documents)

	_, err = state.Update(ctx, "https://example.com/never-seen.git", "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestUpdateOverridesRef(t *testing.T) {
	t.Parallel()

	state := newTestState(t, map[string]string{"a.md": followupDoc})
	ctx := context.Background()

	_, err := state.Ingest(ctx, "https://example.com/reports.git", "main", nil, false)
	require.NoError(t, err)

	_, err = state.Update(ctx, "https://example.com/reports.git", "archive")
	require.NoError(t, err)

	repos, err := state.List(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "archive", repos[0].Branch)
}

func TestRemoveDeletesRegistryAndStore(t *testing.T) {
	t.Parallel()

	state := newTestState(t, map[string]string{
		"lazarus_group/harmony.md": reportDoc,
		"general/followup.md":      followupDoc,
	})
	ctx := context.Background()

	_, err := state.Ingest(ctx, "https://example.com/reports.git", "", nil, false)
	require.NoError(t, err)

	report, err := state.Remove(ctx, "https://example.com/reports.git")
	require.NoError(t, err)
	assert.Equal(t, "reports", report.Key)
	assert.Equal(t, int64(2), report.DocumentsRemoved)
	assert.Empty(t, report.StoreDeleteError)

	repos, err := state.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, repos)

	stats, err := state.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Tables["documents"])

	_, err = state.Remove(ctx, "https://example.com/reports.git")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestSearchModes(t *testing.T) {
	t.Parallel()

	state := newTestState(t, map[string]string{
		"lazarus_group/harmony.md": reportDoc,
	})
	ctx := context.Background()

	_, err := state.Ingest(ctx, "https://example.com/reports.git", "", nil, false)
	require.NoError(t, err)

	semantic, err := state.Search(ctx, "bridge incident laundering", "semantic", 5, "")
	require.NoError(t, err)
	assert.NotEmpty(t, semantic)

	keyword, err := state.Search(ctx, "laundering", "keyword", 5, "")
	require.NoError(t, err)
	assert.NotEmpty(t, keyword)

	_, err = state.Search(ctx, "anything", "fuzzy", 5, "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRelatedEntitiesAcrossStore(t *testing.T) {
	t.Parallel()

	state := newTestState(t, map[string]string{
		"lazarus_group/harmony.md": reportDoc,
	})
	ctx := context.Background()

	_, err := state.Ingest(ctx, "https://example.com/reports.git", "", nil, false)
	require.NoError(t, err)

	related, err := state.Related(ctx, "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh", 1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, related)

	values := make([]string, 0, len(related))
	for _, hit := range related {
		values = append(values, hit.Node.Value)
	}
	assert.Contains(t, values, "evil-updates.com")
}

func TestHealthReport(t *testing.T) {
	t.Parallel()

	state := newTestState(t, map[string]string{"a.md": followupDoc})
	ctx := context.Background()

	// Before any ingest the registry file does not exist yet.
	report := state.Health(ctx)
	assert.Equal(t, telemetry.StatusDegraded, report.Overall)
	require.Len(t, report.Checks, 5)

	byName := make(map[string]telemetry.HealthCheck, len(report.Checks))
	for _, check := range report.Checks {
		byName[check.Name] = check
	}
	assert.Equal(t, telemetry.StatusHealthy, byName["configuration"].Status)
	assert.Equal(t, telemetry.StatusHealthy, byName["database_connection"].Status)
	assert.Equal(t, telemetry.StatusHealthy, byName["database_schema"].Status)
	assert.Equal(t, telemetry.StatusDegraded, byName["repository_store"].Status)
	assert.Equal(t, telemetry.StatusHealthy, byName["lock_system"].Status)

	_, err := state.Ingest(ctx, "https://example.com/reports.git", "", nil, false)
	require.NoError(t, err)

	report = state.Health(ctx)
	assert.Equal(t, telemetry.StatusHealthy, report.Overall)
}

func TestRegistryPersistenceRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "repositories.json")
	registry := map[string]*models.RepositoryMetadata{
		"reports": {
			URL:        "https://example.com/reports.git",
			Branch:     "main",
			FileCount:  3,
			IngestedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, saveRegistry(path, registry))

	loaded, err := loadRegistry(path)
	require.NoError(t, err)
	require.Contains(t, loaded, "reports")
	assert.Equal(t, registry["reports"].URL, loaded["reports"].URL)
	assert.Equal(t, 3, loaded["reports"].FileCount)

	// Missing file is an empty registry.
	empty, err := loadRegistry(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, empty)

	// Corrupt file is a typed error.
	corrupt := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{nope"), 0o644))
	_, err = loadRegistry(corrupt)
	assert.ErrorIs(t, err, errs.ErrFileOperation)
}

func TestRegistryWatcherReloads(t *testing.T) {
	t.Parallel()

	state := newTestState(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := NewRegistryWatcher(state)
	require.NoError(t, err)
	watcher.debounceTime = 50 * time.Millisecond
	watcher.Start(ctx)
	defer watcher.Stop()

	external := map[string]*models.RepositoryMetadata{
		"outside": {URL: "https://example.com/outside.git", Branch: "main"},
	}
	require.NoError(t, saveRegistry(state.registryPath, external))

	assert.Eventually(t, func() bool {
		repos, err := state.List(context.Background())
		return err == nil && len(repos) == 1 && repos[0].URL == "https://example.com/outside.git"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRegistryWatcherStopWithoutStart(t *testing.T) {
	t.Parallel()

	state := newTestState(t, nil)
	watcher, err := NewRegistryWatcher(state)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		watcher.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked with no watch loop running")
	}
}

func TestServerCloseWithoutServe(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(testConfig(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked before Serve ever ran")
	}
}

func TestConcurrentOperationsDoNotDeadlock(t *testing.T) {
	state := newTestState(t, map[string]string{
		"lazarus_group/harmony.md": reportDoc,
	})
	ctx := context.Background()

	_, err := state.Ingest(ctx, "https://example.com/reports.git", "", nil, false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errCh := make(chan error, 64)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := state.List(ctx); err != nil {
					errCh <- err
					return
				}
				if _, err := state.Stats(ctx); err != nil {
					errCh <- err
					return
				}
				state.Health(ctx)
				if _, err := state.Search(ctx, "bridge", "keyword", 5, ""); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 3; j++ {
			if _, err := state.Ingest(ctx, "https://example.com/reports.git", "", nil, false); err != nil {
				errCh <- err
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("concurrent operations deadlocked")
	}
	close(errCh)
	for err := range errCh {
		t.Errorf("operation failed: %v", err)
	}
}

func TestWarehouseConnectsOnce(t *testing.T) {
	t.Parallel()

	state := newTestState(t, nil)
	ctx := context.Background()

	const callers = 8
	stores := make([]*store.Store, callers)
	failures := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stores[i], failures[i] = state.Warehouse(ctx)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, failures[i])
		assert.Same(t, stores[0], stores[i])
	}
}
