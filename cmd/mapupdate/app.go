package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cthulhustig/autojimmy-data/internal/config"
	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
	"github.com/cthulhustig/autojimmy-data/internal/gitrepo"
	"github.com/cthulhustig/autojimmy-data/internal/lock"
	"github.com/cthulhustig/autojimmy-data/internal/logging"
	"github.com/cthulhustig/autojimmy-data/internal/report"
	"github.com/cthulhustig/autojimmy-data/internal/snapshot"
	"github.com/cthulhustig/autojimmy-data/internal/updater"
)

// Locker prevents overlapping runs.
type Locker interface {
	Acquire() error
	Release() error
}

// GitClient is the slice of git operations the commit step needs.
type GitClient interface {
	IsRepository(ctx context.Context) bool
	ChangedPaths(ctx context.Context) ([]string, error)
	Add(ctx context.Context, path string) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, remote string) error
}

// App wires configuration, the updater, locking and git together. The
// constructor function fields exist so tests can substitute fakes.
type App struct {
	Stdout io.Writer
	Stderr io.Writer

	loadConfig func(path string) (*config.Config, error)
	newLocker  func(dataDir string) (Locker, error)
	newGit     func(path string) GitClient
	runUpdate  func(ctx context.Context, cfg *config.Config) (*updater.Result, error)
}

// NewDefaultApp creates an App with real dependencies.
func NewDefaultApp() *App {
	return &App{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		loadConfig: config.Load,
		newLocker: func(dataDir string) (Locker, error) {
			return lock.New(dataDir)
		},
		newGit: func(path string) GitClient {
			return gitrepo.New(path)
		},
		runUpdate: func(ctx context.Context, cfg *config.Config) (*updater.Result, error) {
			return updater.New(cfg).Run(ctx)
		},
	}
}

// Run parses arguments and dispatches to a subcommand. The returned code is
// the process exit code: 0 for success or a no-op, 1 for configuration and
// startup problems, 2 for a failed run.
func (a *App) Run(args []string) int {
	fs := flag.NewFlagSet("mapupdate", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	cfgPath := fs.String("config", "mapupdate.yaml", "config file path")
	dataDir := fs.String("data-dir", "", "snapshot directory (overrides config)")
	baseURL := fs.String("base-url", "", "Traveller Map base URL (overrides config)")
	logLevel := fs.String("log-level", "", "log level (overrides config)")
	logFormat := fs.String("log-format", "", "log format, text or json (overrides config)")
	noGit := fs.Bool("no-git", false, "skip the commit step")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *showVersion {
		fmt.Fprintf(a.Stdout, "mapupdate %s\n", Version)
		return 0
	}

	cfg, err := a.loadConfig(*cfgPath)
	missingConfig := err != nil && os.IsNotExist(err)
	if err != nil && !missingConfig {
		fmt.Fprintf(a.Stderr, "load config: %v\n", err)
		return 1
	}

	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *noGit {
		cfg.Git.Enabled = false
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(a.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	jsonOut := logging.DefaultJSON()
	switch cfg.Log.Format {
	case "json":
		jsonOut = true
	case "text":
		jsonOut = false
	}
	logging.Init(logging.ParseLevel(cfg.Log.Level), jsonOut)

	if missingConfig {
		logging.Info("no config file found, using defaults", "path", *cfgPath)
	}

	cmd := "update"
	rest := fs.Args()
	if len(rest) > 0 {
		cmd = rest[0]
		rest = rest[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "update":
		return a.update(ctx, cfg)
	case "verify":
		return a.verify(cfg)
	case "commit":
		return a.commit(ctx, cfg)
	case "stats":
		return a.stats(ctx, cfg, rest)
	default:
		fmt.Fprintf(a.Stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 1
	}
}

// update refreshes the snapshot under the run lock, then commits it.
func (a *App) update(ctx context.Context, cfg *config.Config) int {
	locker, err := a.newLocker(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(a.Stderr, "%v\n", err)
		return 1
	}
	if err := locker.Acquire(); err != nil {
		if apperrors.Is(err, apperrors.ErrAlreadyRunning) {
			fmt.Fprintf(a.Stderr, "another update is already running: %v\n", err)
			return 1
		}
		fmt.Fprintf(a.Stderr, "%v\n", err)
		return 1
	}
	defer func() {
		if err := locker.Release(); err != nil {
			logging.Warn("lock release failed", "error", err)
		}
	}()

	result, err := a.runUpdate(ctx, cfg)
	if err != nil {
		fmt.Fprintf(a.Stderr, "update failed: %v\n", err)
		return 2
	}

	fmt.Fprintf(a.Stdout, "refreshed %d sectors across %d milieux (run %s)\n",
		result.Sectors, len(cfg.Milieux), result.RunID)

	return a.commitTree(ctx, cfg, result.RunID)
}

// verify sanity-checks an existing snapshot without touching it.
func (a *App) verify(cfg *config.Config) int {
	layout := snapshot.NewLayout(cfg.DataDir)

	if err := layout.Verify(cfg.Milieux, config.MinMilieuFiles); err != nil {
		fmt.Fprintf(a.Stderr, "snapshot verification failed: %v\n", err)
		return 2
	}
	ts, err := layout.ReadTimestamp()
	if err != nil {
		fmt.Fprintf(a.Stderr, "snapshot verification failed: %v\n", err)
		return 2
	}

	fmt.Fprintf(a.Stdout, "snapshot ok, refreshed %s\n", ts.Format(time.RFC3339))
	return 0
}

// commit runs the commit step against whatever is in the working tree. The
// run identifier for the message comes from the snapshot's own timestamp.
func (a *App) commit(ctx context.Context, cfg *config.Config) int {
	layout := snapshot.NewLayout(cfg.DataDir)

	ts, err := layout.ReadTimestamp()
	if err != nil {
		fmt.Fprintf(a.Stderr, "cannot commit without a snapshot timestamp: %v\n", err)
		return 2
	}

	return a.commitTree(ctx, cfg, report.NewRunID(ts))
}

// commitTree stages and commits the snapshot when the changed set contains
// more than the timestamp file.
func (a *App) commitTree(ctx context.Context, cfg *config.Config, runID string) int {
	if !cfg.Git.Enabled {
		fmt.Fprintln(a.Stdout, "git commits disabled, leaving the tree as is")
		return 0
	}

	repoPath := cfg.Git.RepoPath
	if repoPath == "" {
		repoPath = "."
	}

	repo := a.newGit(repoPath)
	if !repo.IsRepository(ctx) {
		fmt.Fprintf(a.Stderr, "%v: %s\n", apperrors.ErrNotGitRepo, repoPath)
		return 2
	}

	changed, err := repo.ChangedPaths(ctx)
	if err != nil {
		fmt.Fprintf(a.Stderr, "%v\n", err)
		return 2
	}

	dataRel := repoRelative(repoPath, cfg.DataDir)
	tsRel := repoRelative(repoPath, snapshot.NewLayout(cfg.DataDir).TimestampPath())

	if !gitrepo.ShouldCommit(changed, dataRel, tsRel) {
		fmt.Fprintln(a.Stdout, "no data changes, nothing to commit")
		return 0
	}

	if err := repo.Add(ctx, dataRel); err != nil {
		fmt.Fprintf(a.Stderr, "%v\n", err)
		return 2
	}

	message := gitrepo.CommitMessage(cfg.Git.MessagePrefix, runID)
	if err := repo.Commit(ctx, message); err != nil {
		fmt.Fprintf(a.Stderr, "%v\n", err)
		return 2
	}
	fmt.Fprintf(a.Stdout, "committed: %s\n", message)

	if cfg.Git.Push {
		if err := repo.Push(ctx, cfg.Git.Remote); err != nil {
			fmt.Fprintf(a.Stderr, "%v\n", err)
			return 2
		}
		fmt.Fprintf(a.Stdout, "pushed to %s\n", cfg.Git.Remote)
	}

	return 0
}

// repoRelative converts path to the repo-relative slash form that git
// status reports. Both sides are resolved to absolute first, so a relative
// repo path combined with an absolute data dir still compares correctly.
func repoRelative(repoPath, path string) string {
	absRepo, err := filepath.Abs(repoPath)
	if err != nil {
		return filepath.ToSlash(path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(absRepo, absPath)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// stats summarizes past runs from the report files. With no argument it
// lists one line per run; with a run identifier it breaks that run down by
// download kind and lists its failures.
func (a *App) stats(ctx context.Context, cfg *config.Config, args []string) int {
	svc, err := report.NewQueryService()
	if err != nil {
		fmt.Fprintf(a.Stderr, "%v\n", err)
		return 2
	}
	defer svc.Close()

	if len(args) == 0 {
		summaries, err := svc.RunSummaries(ctx, cfg.Report.Dir)
		if err != nil {
			fmt.Fprintf(a.Stderr, "%v\n", err)
			return 2
		}
		if len(summaries) == 0 {
			fmt.Fprintf(a.Stdout, "no report files under %s\n", cfg.Report.Dir)
			return 0
		}

		w := tabwriter.NewWriter(a.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTARTED\tDOWNLOADS\tFAILURES\tBYTES\tP50MS\tP95MS")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.0f\t%.0f\n",
				s.RunID, s.Started.Format(time.RFC3339), s.Downloads, s.Failures,
				s.Bytes, s.P50Ms, s.P95Ms)
		}
		w.Flush()
		return 0
	}

	runID := args[0]

	kinds, err := svc.KindBreakdown(ctx, cfg.Report.Dir, runID)
	if err != nil {
		fmt.Fprintf(a.Stderr, "%v\n", err)
		return 2
	}
	if len(kinds) == 0 {
		fmt.Fprintf(a.Stdout, "no rows for run %s\n", runID)
		return 0
	}

	w := tabwriter.NewWriter(a.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tDOWNLOADS\tFAILURES\tBYTES\tAVGMS")
	for _, k := range kinds {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.0f\n",
			k.Kind, k.Downloads, k.Failures, k.Bytes, k.AvgMs)
	}
	w.Flush()

	failures, err := svc.Failures(ctx, cfg.Report.Dir, runID)
	if err != nil {
		fmt.Fprintf(a.Stderr, "%v\n", err)
		return 2
	}
	for _, f := range failures {
		fmt.Fprintf(a.Stdout, "failed: %s %s %s after %d attempts: %s\n",
			f.Kind, f.Milieu, f.Name, f.Attempts, f.Error)
	}

	return 0
}
