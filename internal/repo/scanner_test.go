package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilde-sec/threatsift/internal/models"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScannerDiscovery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "reports/a.md", "# A")
	writeFile(t, root, "reports/b.md", "# B")
	writeFile(t, root, "reports/data.json", "{}")
	writeFile(t, root, "notes.MD", "# upper ext")
	writeFile(t, root, ".git/objects/stub.md", "not a doc")
	writeFile(t, root, "archive/old.zip.md", "# misleading name")

	s, err := NewScanner(root, []string{".git/*"}, 0)
	require.NoError(t, err)

	files, err := s.Scan(nil)
	require.NoError(t, err)

	var rels []string
	for _, f := range files {
		rels = append(rels, f.RelativePath)
	}
	// Deterministic order, .md only, .git pruned.
	assert.Equal(t, []string{"archive/old.zip.md", "notes.MD", "reports/a.md", "reports/b.md"}, rels)
}

func TestScannerSkipPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.md", "# keep")
	writeFile(t, root, "drafts/wip.md", "# wip")
	writeFile(t, root, "backup.bak.md", "# bak")

	s, err := NewScanner(root, []string{"drafts/*", "*.bak.md"}, 0)
	require.NoError(t, err)

	files, err := s.Scan(nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "keep.md", files[0].RelativePath)
}

func TestScannerSubdirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/one.md", "# one")
	writeFile(t, root, "a/two.md", "# two")
	writeFile(t, root, "b/other.md", "# other")

	s, err := NewScanner(root, nil, 0)
	require.NoError(t, err)

	files, err := s.Scan([]string{"a"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a/one.md", files[0].RelativePath)
	assert.Equal(t, "a/two.md", files[1].RelativePath)
}

func TestScannerListsOversizeFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.md", "# small")
	writeFile(t, root, "big.md", string(make([]byte, 2048)))

	s, err := NewScanner(root, nil, 1024)
	require.NoError(t, err)

	// Oversize files stay in the listing; rejection happens during
	// processing so the run can report it.
	files, err := s.Scan(nil)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "big.md", files[0].RelativePath)
	assert.Equal(t, int64(2048), files[0].Size)
}

func TestScannerSkipsUnreadableEntries(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	writeFile(t, root, "ok.md", "# ok")
	writeFile(t, root, "locked/secret.md", "# secret")
	require.NoError(t, os.Chmod(filepath.Join(root, "locked"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(root, "locked"), 0o755) })

	s, err := NewScanner(root, nil, 0)
	require.NoError(t, err)

	files, err := s.Scan(nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "ok.md", files[0].RelativePath)
}

func TestScannerMissingSubdir(t *testing.T) {
	s, err := NewScanner(t.TempDir(), nil, 0)
	require.NoError(t, err)

	_, err = s.Scan([]string{"nope"})
	require.Error(t, err)
}

func TestFilterByHash(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "known.md", "# known content")
	writeFile(t, root, "fresh.md", "# fresh content")

	s, err := NewScanner(root, nil, 0)
	require.NoError(t, err)
	files, err := s.Scan(nil)
	require.NoError(t, err)
	require.Len(t, files, 2)

	known := map[string]struct{}{
		models.HashContent("# known content"): {},
	}

	kept := FilterByHash(files, known, false)
	require.Len(t, kept, 1)
	assert.Equal(t, "fresh.md", kept[0].RelativePath)

	// Force keeps everything.
	assert.Len(t, FilterByHash(files, known, true), 2)

	// Unreadable file fails open.
	missing := append(kept, FileMeta{Path: filepath.Join(root, "gone.md"), RelativePath: "gone.md"})
	assert.Len(t, FilterByHash(missing, known, false), 2)
}

func TestAttribution(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "lazarus_group", Attribution("lazarus_group/2024/atomic.md"))
	assert.Equal(t, "apt38", Attribution("reports/APT38/swift.md"))
	assert.Equal(t, "general", Attribution("misc/overview.md"))
}

func TestTopicAndSummary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bridge", Topic("hacks/bridge_exploits/harmony.md"))
	assert.Equal(t, "", Topic("misc/overview.md"))

	assert.True(t, IsSummaryFile("lazarus_group/README.md"))
	assert.True(t, IsSummaryFile("index.md"))
	assert.False(t, IsSummaryFile("reports/summary_of_nothing.md"))
}

func TestSyncerFakeGit(t *testing.T) {
	t.Parallel()

	t.Run("clone path", func(t *testing.T) {
		var calls [][]string
		s := &Syncer{run: func(_ context.Context, dir string, args ...string) (string, error) {
			calls = append(calls, append([]string{dir}, args...))
			if args[0] == "rev-parse" {
				return "abc123", nil
			}
			return "", nil
		}}

		res, err := s.Sync(context.Background(), "https://example.com/intel.git", filepath.Join(t.TempDir(), "corpus"), "main")
		require.NoError(t, err)
		assert.True(t, res.Cloned)
		assert.Equal(t, "abc123", res.CommitHash)
		require.NotEmpty(t, calls)
		assert.Equal(t, "clone", calls[0][1])
		assert.Contains(t, calls[0], "--branch")
	})

	t.Run("pull already up to date", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

		s := &Syncer{run: func(_ context.Context, _ string, args ...string) (string, error) {
			switch args[0] {
			case "fetch":
				return "", nil
			case "merge":
				return "Already up to date.", nil
			case "rev-parse":
				return "def456", nil
			}
			return "", errors.New("unexpected git call")
		}}

		res, err := s.Sync(context.Background(), "https://example.com/intel.git", dir, "main")
		require.NoError(t, err)
		assert.False(t, res.Cloned)
		assert.False(t, res.Updated)
		assert.Equal(t, "def456", res.CommitHash)
	})

	t.Run("diverged history keeps local", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

		s := &Syncer{run: func(_ context.Context, _ string, args ...string) (string, error) {
			switch args[0] {
			case "fetch":
				return "", nil
			case "merge":
				return "fatal: Not possible to fast-forward", errors.New("exit 128")
			case "rev-parse":
				return "local789", nil
			}
			return "", errors.New("unexpected git call")
		}}

		res, err := s.Sync(context.Background(), "https://example.com/intel.git", dir, "main")
		require.NoError(t, err)
		assert.False(t, res.Updated)
		assert.Equal(t, "local789", res.CommitHash)
	})
}
