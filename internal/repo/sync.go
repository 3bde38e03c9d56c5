package repo

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tilde-sec/threatsift/internal/errs"
)

// SyncResult reports what a synchronization did.
type SyncResult struct {
	Cloned     bool
	Updated    bool
	CommitHash string
}

// Syncer clones or fast-forwards the corpus repository by shelling out
// to git. Tests can swap run for a fake.
type Syncer struct {
	run func(ctx context.Context, dir string, args ...string) (string, error)
}

func NewSyncer() *Syncer {
	return &Syncer{run: runGit}
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(output)), err
}

// Sync makes localPath an up-to-date checkout of url on branch. A
// checkout that cannot fast-forward is left alone with a warning so
// local notes are never clobbered.
func (s *Syncer) Sync(ctx context.Context, url, localPath, branch string) (*SyncResult, error) {
	gitDir := filepath.Join(localPath, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		return s.pull(ctx, url, localPath, branch)
	}
	return s.clone(ctx, url, localPath, branch)
}

func (s *Syncer) clone(ctx context.Context, url, localPath, branch string) (*SyncResult, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return nil, errs.FileOp("mkdir", localPath, err)
	}

	args := []string{"clone", "--single-branch"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, localPath)

	if out, err := s.run(ctx, "", args...); err != nil {
		return nil, &errs.RepositorySyncError{Repository: url, Message: "clone failed: " + out, Err: err}
	}

	commit, err := s.CurrentCommit(ctx, localPath)
	if err != nil {
		return nil, err
	}
	slog.Info("cloned repository", "url", url, "path", localPath, "commit", commit)
	return &SyncResult{Cloned: true, CommitHash: commit}, nil
}

func (s *Syncer) pull(ctx context.Context, url, localPath, branch string) (*SyncResult, error) {
	if out, err := s.run(ctx, localPath, "fetch", "origin"); err != nil {
		return nil, &errs.RepositorySyncError{Repository: url, Message: "fetch failed: " + out, Err: err}
	}

	ref := "origin/HEAD"
	if branch != "" {
		ref = "origin/" + branch
	}

	updated := true
	out, err := s.run(ctx, localPath, "merge", "--ff-only", ref)
	switch {
	case err == nil && strings.Contains(out, "Already up to date"):
		updated = false
	case err != nil:
		// Diverged history needs a manual merge; keep the local state.
		slog.Warn("cannot fast-forward, keeping local checkout", "url", url, "detail", out)
		updated = false
	}

	commit, err := s.CurrentCommit(ctx, localPath)
	if err != nil {
		return nil, err
	}
	return &SyncResult{Updated: updated, CommitHash: commit}, nil
}

// CurrentCommit returns the full hash of HEAD.
func (s *Syncer) CurrentCommit(ctx context.Context, localPath string) (string, error) {
	out, err := s.run(ctx, localPath, "rev-parse", "HEAD")
	if err != nil {
		return "", &errs.RepositorySyncError{Repository: localPath, Message: "rev-parse failed: " + out, Err: err}
	}
	return out, nil
}
