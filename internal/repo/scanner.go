// Package repo handles the corpus git repository: synchronization,
// markdown discovery, and path-based attribution.
package repo

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/tilde-sec/threatsift/internal/errs"
	"github.com/tilde-sec/threatsift/internal/models"
)

// FileMeta describes one discovered markdown file.
type FileMeta struct {
	Path         string
	RelativePath string
	Size         int64
	Modified     time.Time
}

// compiledPattern pairs a raw skip pattern with its compiled glob.
// Patterns without wildcards fall back to substring matching.
type compiledPattern struct {
	raw  string
	glob glob.Glob
}

// Scanner discovers markdown files under a root directory.
type Scanner struct {
	root        string
	maxFileSize int64
	patterns    []compiledPattern
}

// NewScanner compiles skipPatterns and returns a scanner rooted at
// root. Files above maxFileSize are still listed (with a warning) so
// the pipeline can record their rejection; <= 0 disables the warning.
func NewScanner(root string, skipPatterns []string, maxFileSize int64) (*Scanner, error) {
	patterns := make([]compiledPattern, 0, len(skipPatterns))
	for _, raw := range skipPatterns {
		cp := compiledPattern{raw: raw}
		if strings.ContainsAny(raw, "*?[") {
			g, err := glob.Compile(raw, '/')
			if err != nil {
				return nil, errs.Configuration("invalid skip pattern %q: %v", raw, err)
			}
			cp.glob = g
		}
		patterns = append(patterns, cp)
	}
	return &Scanner{root: root, maxFileSize: maxFileSize, patterns: patterns}, nil
}

// Scan walks the tree and returns markdown files in deterministic
// (relative path) order. Symlinks are not followed. subdirs narrows
// the walk to the named top-level directories; empty means everything.
func (s *Scanner) Scan(subdirs []string) ([]FileMeta, error) {
	roots := []string{s.root}
	if len(subdirs) > 0 {
		roots = roots[:0]
		for _, sub := range subdirs {
			roots = append(roots, filepath.Join(s.root, sub))
		}
	}

	var files []FileMeta
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			return nil, errs.FileOp("scan", root, err)
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable entries are noted and skipped, never
				// fatal to the scan.
				slog.Warn("skipping unreadable entry", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			rel, relErr := filepath.Rel(s.root, path)
			if relErr != nil {
				return errs.FileOp("walk", path, relErr)
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if s.shouldSkip(rel + "/") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(path), ".md") {
				return nil
			}
			if s.shouldSkip(rel) {
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil {
				slog.Warn("skipping unreadable entry", "path", path, "error", infoErr)
				return nil
			}
			if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
				// Kept in the result set so the pipeline records a
				// failed outcome for it instead of dropping it here.
				slog.Warn("file exceeds size ceiling", "path", rel, "size", info.Size(), "limit", s.maxFileSize)
			}

			files = append(files, FileMeta{
				Path:         path,
				RelativePath: rel,
				Size:         info.Size(),
				Modified:     info.ModTime(),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelativePath < files[j].RelativePath
	})
	return files, nil
}

// shouldSkip checks rel (slash-separated, directories carry a trailing
// slash) against the compiled patterns. Glob patterns match either the
// whole relative path or the base name; plain patterns match as
// substring.
func (s *Scanner) shouldSkip(rel string) bool {
	trimmed := strings.TrimSuffix(rel, "/")
	base := trimmed
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		base = trimmed[idx+1:]
	}
	for _, p := range s.patterns {
		if p.glob != nil {
			// The trailing-slash form lets "dir/*" style patterns
			// match the directory itself and prune the walk early.
			if p.glob.Match(trimmed) || p.glob.Match(rel) || p.glob.Match(base) {
				return true
			}
			continue
		}
		if strings.Contains(rel, p.raw) {
			return true
		}
	}
	return false
}

// ComputeFileHash returns the SHA-256 hex digest of the file content.
func ComputeFileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errs.FileOp("read", path, err)
	}
	return models.HashContent(string(data)), nil
}

// FilterByHash drops files whose content digest is already known.
// A hash failure keeps the file in the set so the pipeline surfaces
// the real error during processing.
func FilterByHash(files []FileMeta, known map[string]struct{}, force bool) []FileMeta {
	if force || len(known) == 0 {
		return files
	}
	kept := make([]FileMeta, 0, len(files))
	for _, f := range files {
		hash, err := ComputeFileHash(f.Path)
		if err != nil {
			kept = append(kept, f)
			continue
		}
		if _, exists := known[hash]; exists {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}
