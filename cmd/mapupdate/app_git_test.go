package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cthulhustig/autojimmy-data/internal/config"
	"github.com/cthulhustig/autojimmy-data/internal/gitrepo"
	"github.com/cthulhustig/autojimmy-data/internal/updater"
)

// gitCmd runs git against dir and fails the test on error.
func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return string(out)
}

// initRepo creates a git repository with one initial commit.
func initRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	gitCmd(t, dir, "init", "-q")
	gitCmd(t, dir, "config", "user.email", "test@example.com")
	gitCmd(t, dir, "config", "user.name", "test")
	gitCmd(t, dir, "commit", "-q", "--allow-empty", "-m", "initial")
	return dir
}

// commitSubjects returns the repository's commit subjects, newest first.
func commitSubjects(t *testing.T, dir string) []string {
	t.Helper()
	out := strings.TrimSpace(gitCmd(t, dir, "log", "--format=%s"))
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// fixedUpstream serves a single-sector instance whose responses never change,
// so two consecutive refreshes produce byte-identical data files.
func fixedUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/t5ss/sophonts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"Code":"Asla","Name":"Aslan"}]`))
	})
	mux.HandleFunc("/t5ss/allegiances", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"Code":"Im","Name":"Third Imperium"}]`))
	})
	mux.HandleFunc("/res/mains.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[["0140","0141"]]`))
	})
	mux.HandleFunc("/api/universe", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Sectors":[{"Names":[{"Text":"Core"}],"X":0,"Y":0,"Tags":"OTU","Milieu":"M1105"}]}`))
	})
	mux.HandleFunc("/api/sec", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "# 2026-08-23T04:05:06+00:00\n0101 Testworld A000000-0\n")
	})
	mux.HandleFunc("/api/metadata", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><Sector><Name>Core</Name><X>0</X><Y>0</Y></Sector>`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// realGitApp wires an App with the real git client and the real updater.
func realGitApp(cfg *config.Config) (*App, *bytes.Buffer, *bytes.Buffer) {
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
		newGit: func(path string) GitClient {
			return gitrepo.New(path)
		},
		runUpdate: func(ctx context.Context, c *config.Config) (*updater.Result, error) {
			return updater.New(c).Run(ctx)
		},
	}
	return app, &out, &errOut
}

// A report directory inside the checkout must not make an unchanged refresh
// look like a data update: the second of two identical runs writes a new
// report file and a new timestamp, yet no commit may be created for it.
func TestUpdateCommitGatingRealGit(t *testing.T) {
	repo := initRepo(t)
	srv := fixedUpstream(t)

	cfg := config.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.DataDir = filepath.Join(repo, "map")
	cfg.Milieux = []string{"M1105"}
	cfg.HTTP.TimeoutSec = 5
	cfg.HTTP.Retries = 0
	cfg.HTTP.RetryDelaySec = 0
	cfg.Git.RepoPath = repo
	cfg.Report.Dir = filepath.Join(repo, "reports")

	app, out, errOut := realGitApp(cfg)
	if code := app.Run([]string{"update"}); code != 0 {
		t.Fatalf("first update exit code = %d, stderr %q", code, errOut.String())
	}

	subjects := commitSubjects(t, repo)
	if len(subjects) != 2 || !strings.HasPrefix(subjects[0], "Map data update") {
		t.Fatalf("after first update, commits = %v", subjects)
	}

	out.Reset()
	if code := app.Run([]string{"update"}); code != 0 {
		t.Fatalf("second update exit code = %d, stderr %q", code, errOut.String())
	}
	if !strings.Contains(out.String(), "nothing to commit") {
		t.Errorf("second update output = %q", out.String())
	}
	if got := commitSubjects(t, repo); len(got) != 2 {
		t.Errorf("second identical update created a commit: %v", got)
	}

	// The report files never get staged along with the snapshot.
	status := gitCmd(t, repo, "status", "--porcelain")
	if !strings.Contains(status, "?? reports/") {
		t.Errorf("status = %q, want reports/ left untracked", status)
	}
}

// An absolute data dir combined with the default repo path of "." has to
// compare correctly against git's repo-relative status paths, both when
// gating and when locating the timestamp file.
func TestCommitAbsoluteDataDirRealGit(t *testing.T) {
	repo := initRepo(t)
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(repo); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldwd) })

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(repo, "map")
	cfg.Milieux = []string{"M1105"}
	cfg.Git.RepoPath = ""
	cfg.Report.Dir = filepath.Join(t.TempDir(), "reports")

	layout := writeSnapshot(t, cfg)

	app, out, errOut := realGitApp(cfg)
	if code := app.Run([]string{"commit"}); code != 0 {
		t.Fatalf("commit exit code = %d, stderr %q", code, errOut.String())
	}

	subjects := commitSubjects(t, repo)
	if len(subjects) != 2 || !strings.HasPrefix(subjects[0], "Map data update") {
		t.Fatalf("after commit, commits = %v", subjects)
	}

	// Touching only the timestamp must be a no-op for the next commit run.
	if err := layout.WriteTimestamp(time.Date(2026, 8, 30, 4, 5, 6, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	if code := app.Run([]string{"commit"}); code != 0 {
		t.Fatalf("second commit exit code = %d, stderr %q", code, errOut.String())
	}
	if !strings.Contains(out.String(), "nothing to commit") {
		t.Errorf("second commit output = %q", out.String())
	}
	if got := commitSubjects(t, repo); len(got) != 2 {
		t.Errorf("timestamp-only change was committed: %v", got)
	}
}
