// Package gitrepo wraps the git command line for the commit step.
//
// The snapshot is published by committing it, so the only logic here beyond
// running git is the gating rule: a refresh is only worth committing when
// something other than the timestamp file changed.
package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
	"github.com/cthulhustig/autojimmy-data/internal/logging"
)

// Runner executes git with the given arguments and returns combined output.
// It exists so tests can substitute a fake git.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), apperrors.Wrapf(apperrors.ErrGitFailed,
			"git %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Repo is a git working tree.
type Repo struct {
	path string
	run  Runner
	log  *slog.Logger
}

// New creates a Repo for the working tree at path.
func New(path string) *Repo {
	return NewWithRunner(path, execRunner{})
}

// NewWithRunner creates a Repo with a custom git runner.
func NewWithRunner(path string, runner Runner) *Repo {
	return &Repo{
		path: path,
		run:  runner,
		log:  logging.Component("git"),
	}
}

// IsRepository reports whether the path is inside a git working tree.
func (r *Repo) IsRepository(ctx context.Context) bool {
	_, err := r.run.Run(ctx, r.path, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// ChangedPaths returns the paths reported by git status, in repo-relative
// slash form.
func (r *Repo) ChangedPaths(ctx context.Context) ([]string, error) {
	out, err := r.run.Run(ctx, r.path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		// Renames are reported as "orig -> new"; the new path is the one
		// that matters for gating.
		if idx := strings.Index(path, " -> "); idx >= 0 {
			path = path[idx+4:]
		}
		path = strings.Trim(strings.TrimSpace(path), `"`)
		if path != "" {
			paths = append(paths, path)
		}
	}

	r.log.Debug("working tree status", "changed", len(paths))
	return paths, nil
}

// Add stages all changes under path, which must be repo-relative. Staging
// is limited to the snapshot tree so unrelated files in the repository,
// run reports included, never ride along with a data commit.
func (r *Repo) Add(ctx context.Context, path string) error {
	_, err := r.run.Run(ctx, r.path, "add", "--all", "--", path)
	return err
}

// Commit creates a commit with the given message.
func (r *Repo) Commit(ctx context.Context, message string) error {
	_, err := r.run.Run(ctx, r.path, "commit", "-m", message)
	return err
}

// Push pushes HEAD to the remote.
func (r *Repo) Push(ctx context.Context, remote string) error {
	_, err := r.run.Run(ctx, r.path, "push", remote, "HEAD")
	return err
}

// ShouldCommit applies the gating rule: commit only when the changed set
// contains at least one path inside the snapshot directory other than the
// timestamp file. A refresh that changed nothing but the timestamp carries
// no new data, and changes outside the snapshot tree (run reports, working
// files) are not the updater's to publish. Both dataDir and timestampPath
// must be repo-relative, matching git's porcelain output.
func ShouldCommit(changed []string, dataDir, timestampPath string) bool {
	prefix := filepath.ToSlash(dataDir)
	if prefix == "." || prefix == "" {
		prefix = ""
	} else if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	ts := filepath.ToSlash(timestampPath)

	for _, path := range changed {
		p := filepath.ToSlash(path)
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if p != ts {
			return true
		}
	}
	return false
}

// CommitMessage builds the commit message for a refresh.
func CommitMessage(prefix, runID string) string {
	return fmt.Sprintf("%s %s", prefix, runID)
}
