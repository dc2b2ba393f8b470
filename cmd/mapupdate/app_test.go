package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cthulhustig/autojimmy-data/internal/config"
	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
	"github.com/cthulhustig/autojimmy-data/internal/snapshot"
	"github.com/cthulhustig/autojimmy-data/internal/updater"
)

type nopLocker struct{ acquireErr error }

func (l nopLocker) Acquire() error { return l.acquireErr }
func (l nopLocker) Release() error { return nil }

type fakeGit struct {
	isRepo  bool
	changed []string
	calls   []string
}

func (g *fakeGit) IsRepository(ctx context.Context) bool { return g.isRepo }

func (g *fakeGit) ChangedPaths(ctx context.Context) ([]string, error) {
	return g.changed, nil
}

func (g *fakeGit) Add(ctx context.Context, path string) error {
	g.calls = append(g.calls, "add "+path)
	return nil
}

func (g *fakeGit) Commit(ctx context.Context, message string) error {
	g.calls = append(g.calls, "commit "+message)
	return nil
}

func (g *fakeGit) Push(ctx context.Context, remote string) error {
	g.calls = append(g.calls, "push "+remote)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "map")
	cfg.Milieux = []string{"M1105"}
	cfg.Report.Dir = filepath.Join(t.TempDir(), "reports")
	return cfg
}

func testApp(cfg *config.Config, git *fakeGit) (*App, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer

	app := &App{
		Stdout: &out,
		Stderr: &errOut,
		loadConfig: func(string) (*config.Config, error) {
			return cfg, nil
		},
		newLocker: func(string) (Locker, error) {
			return nopLocker{}, nil
		},
		newGit: func(string) GitClient {
			return git
		},
		runUpdate: func(ctx context.Context, c *config.Config) (*updater.Result, error) {
			return &updater.Result{RunID: "20260823T040506Z", Sectors: 3}, nil
		},
	}
	return app, &out, &errOut
}

// writeSnapshot lays down a minimal valid snapshot tree.
func writeSnapshot(t *testing.T, cfg *config.Config) snapshot.Layout {
	t.Helper()

	layout := snapshot.NewLayout(cfg.DataDir)
	dir := layout.MilieuDir("M1105")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"universe.json", "Core.sec", "Core.xml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("data"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := layout.WriteDataFormat(config.DataFormatVersion); err != nil {
		t.Fatal(err)
	}
	if err := layout.WriteTimestamp(time.Date(2026, 8, 23, 4, 5, 6, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	return layout
}

func TestVersionFlag(t *testing.T) {
	app, out, _ := testApp(testConfig(t), &fakeGit{})

	if code := app.Run([]string{"-version"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out.String(), "mapupdate") {
		t.Errorf("output = %q", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	app, _, errOut := testApp(testConfig(t), &fakeGit{})

	if code := app.Run([]string{"frobnicate"}); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.BaseURL = ""
	app, _, errOut := testApp(cfg, &fakeGit{})

	if code := app.Run([]string{"verify"}); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "invalid configuration") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestVerify(t *testing.T) {
	cfg := testConfig(t)
	writeSnapshot(t, cfg)
	app, out, _ := testApp(cfg, &fakeGit{})

	if code := app.Run([]string{"verify"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out.String(), "snapshot ok") {
		t.Errorf("output = %q", out.String())
	}
}

func TestVerifyMissingSnapshot(t *testing.T) {
	app, _, errOut := testApp(testConfig(t), &fakeGit{})

	if code := app.Run([]string{"verify"}); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "verification failed") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestUpdateCommitsWhenDataChanged(t *testing.T) {
	cfg := testConfig(t)
	cfg.Git.Push = true
	cfg.Git.RepoPath = filepath.Dir(cfg.DataDir)
	git := &fakeGit{
		isRepo: true,
		changed: []string{
			"map/timestamp.txt",
			"map/milieu/M1105/Core.sec",
		},
	}
	app, out, _ := testApp(cfg, git)

	if code := app.Run([]string{"update"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}

	if len(git.calls) != 3 {
		t.Fatalf("git calls = %v", git.calls)
	}
	if git.calls[0] != "add map" {
		t.Errorf("first call = %q, want add map", git.calls[0])
	}
	if want := "commit Map data update 20260823T040506Z"; git.calls[1] != want {
		t.Errorf("commit call = %q, want %q", git.calls[1], want)
	}
	if git.calls[2] != "push origin" {
		t.Errorf("push call = %q", git.calls[2])
	}
	if !strings.Contains(out.String(), "refreshed 3 sectors") {
		t.Errorf("output = %q", out.String())
	}
}

func TestUpdateSkipsCommitWhenOnlyTimestampChanged(t *testing.T) {
	cfg := testConfig(t)
	cfg.Git.RepoPath = filepath.Dir(cfg.DataDir)
	git := &fakeGit{
		isRepo:  true,
		changed: []string{"map/timestamp.txt"},
	}
	app, out, _ := testApp(cfg, git)

	if code := app.Run([]string{"update"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if len(git.calls) != 0 {
		t.Errorf("git calls = %v, want none", git.calls)
	}
	if !strings.Contains(out.String(), "nothing to commit") {
		t.Errorf("output = %q", out.String())
	}
}

func TestUpdateIgnoresChangesOutsideSnapshot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Git.RepoPath = filepath.Dir(cfg.DataDir)
	git := &fakeGit{
		isRepo: true,
		changed: []string{
			"map/timestamp.txt",
			"reports/run-20260823T040506Z.parquet",
			"notes.md",
		},
	}
	app, out, _ := testApp(cfg, git)

	if code := app.Run([]string{"update"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if len(git.calls) != 0 {
		t.Errorf("git calls = %v, want none", git.calls)
	}
	if !strings.Contains(out.String(), "nothing to commit") {
		t.Errorf("output = %q", out.String())
	}
}

func TestUpdateNoGitFlag(t *testing.T) {
	cfg := testConfig(t)
	git := &fakeGit{isRepo: true, changed: []string{"map/mains.json"}}
	app, out, _ := testApp(cfg, git)

	if code := app.Run([]string{"-no-git", "update"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if len(git.calls) != 0 {
		t.Errorf("git calls = %v, want none", git.calls)
	}
	if !strings.Contains(out.String(), "git commits disabled") {
		t.Errorf("output = %q", out.String())
	}
}

func TestUpdateNotARepository(t *testing.T) {
	cfg := testConfig(t)
	app, _, errOut := testApp(cfg, &fakeGit{isRepo: false})

	if code := app.Run([]string{"update"}); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "not a git repository") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestUpdateLockConflict(t *testing.T) {
	cfg := testConfig(t)
	app, _, errOut := testApp(cfg, &fakeGit{})
	app.newLocker = func(string) (Locker, error) {
		return nopLocker{acquireErr: apperrors.ErrAlreadyRunning}, nil
	}

	if code := app.Run([]string{"update"}); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "already running") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestCommitSubcommandUsesSnapshotTimestamp(t *testing.T) {
	cfg := testConfig(t)
	cfg.Git.RepoPath = filepath.Dir(cfg.DataDir)
	writeSnapshot(t, cfg)
	git := &fakeGit{
		isRepo:  true,
		changed: []string{"map/milieu/M1105/Core.sec"},
	}
	app, _, _ := testApp(cfg, git)

	if code := app.Run([]string{"commit"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if want := "commit Map data update 20260823T040506Z"; len(git.calls) < 2 || git.calls[1] != want {
		t.Errorf("git calls = %v, want commit %q", git.calls, want)
	}
}

func TestStatsNoReports(t *testing.T) {
	cfg := testConfig(t)
	app, out, _ := testApp(cfg, &fakeGit{})

	if code := app.Run([]string{"stats"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out.String(), "no report files") {
		t.Errorf("output = %q", out.String())
	}
}
