package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tilde-sec/threatsift/internal/errs"
	"github.com/tilde-sec/threatsift/internal/models"
)

// loadRegistry reads the full registry mapping from disk. A missing
// file is an empty registry, not an error.
func loadRegistry(path string) (map[string]*models.RepositoryMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*models.RepositoryMetadata), nil
		}
		return nil, errs.FileOp("read", path, err)
	}
	registry := make(map[string]*models.RepositoryMetadata)
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, errs.FileOp("parse", path, err)
	}
	return registry, nil
}

// saveRegistry rewrites the whole mapping atomically: write a sibling
// temp file, then rename over the target.
func saveRegistry(path string, registry map[string]*models.RepositoryMetadata) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.FileOp("mkdir", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return errs.FileOp("encode", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.FileOp("write", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.FileOp("rename", path, err)
	}
	return nil
}

// ReloadRegistry re-reads the registry file and replaces the in-memory
// mapping. Called by the watcher when another process rewrites the file.
func (s *State) ReloadRegistry(ctx context.Context) error {
	registry, err := loadRegistry(s.registryPath)
	if err != nil {
		return err
	}
	if err := s.registryLock.acquire(ctx, s.lockTimeout); err != nil {
		return err
	}
	defer s.registryLock.release()
	s.registry = registry
	return nil
}

// RegistryWatcher watches the registry file and reloads the state when
// it changes on disk. Events are debounced; a failed reload keeps the
// old registry.
type RegistryWatcher struct {
	state        *State
	watcher      *fsnotify.Watcher
	fileName     string
	debounceTime time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
	started      atomic.Bool
	stopOnce     sync.Once
}

// NewRegistryWatcher watches the directory containing the registry file
// so rename-based rewrites are observed.
func NewRegistryWatcher(state *State) (*RegistryWatcher, error) {
	dir := filepath.Dir(state.registryPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.FileOp("mkdir", dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &RegistryWatcher{
		state:        state,
		watcher:      watcher,
		fileName:     filepath.Base(state.registryPath),
		debounceTime: 500 * time.Millisecond,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start begins watching in the background. Calling it more than once
// is a no-op.
func (w *RegistryWatcher) Start(ctx context.Context) {
	if w.started.CompareAndSwap(false, true) {
		go w.watch(ctx)
	}
}

// Stop halts the watcher and waits for the loop to exit. Safe to call
// even when Start never ran.
func (w *RegistryWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.started.Load() {
			<-w.doneCh
		}
		w.watcher.Close()
	})
}

func (w *RegistryWatcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	var debounce *time.Timer
	reloadCh := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.fileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
			}
			debounce = time.AfterFunc(w.debounceTime, func() {
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			})
		case <-reloadCh:
			if err := w.state.ReloadRegistry(ctx); err != nil {
				slog.Warn("registry reload failed, keeping previous state", "error", err)
				continue
			}
			slog.Info("registry reloaded", "path", w.state.registryPath)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("registry watcher error", "error", err)
		}
	}
}
