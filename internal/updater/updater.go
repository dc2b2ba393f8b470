// Package updater orchestrates a full snapshot refresh: global listings,
// then every milieu's universe and sector files, then the sanity checks and
// the timestamp. A refresh is all-or-nothing; any failed download or check
// fails the run and leaves the tree uncommittable.
package updater

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cthulhustig/autojimmy-data/internal/config"
	"github.com/cthulhustig/autojimmy-data/internal/downloader"
	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
	"github.com/cthulhustig/autojimmy-data/internal/logging"
	"github.com/cthulhustig/autojimmy-data/internal/report"
	"github.com/cthulhustig/autojimmy-data/internal/snapshot"
	"github.com/cthulhustig/autojimmy-data/internal/stats"
	"github.com/cthulhustig/autojimmy-data/internal/travellermap"
	"github.com/cthulhustig/autojimmy-data/internal/validation"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Updater refreshes one snapshot tree from the upstream API.
type Updater struct {
	cfg       *config.Config
	layout    snapshot.Layout
	endpoints travellermap.Endpoints
	dl        *downloader.Downloader
	stats     *stats.RunStats
	recorder  *report.Recorder
	log       *slog.Logger
}

// Result summarizes a completed refresh.
type Result struct {
	RunID      string
	Started    time.Time
	Sectors    int
	Renamed    int
	ReportPath string
	Stats      stats.Summary
}

// New creates an Updater from a validated configuration.
func New(cfg *config.Config) *Updater {
	runStats := stats.New()

	return &Updater{
		cfg:       cfg,
		layout:    snapshot.NewLayout(cfg.DataDir),
		endpoints: travellermap.NewEndpoints(cfg.BaseURL),
		dl: downloader.New(downloader.Options{
			Timeout:    cfg.HTTP.Timeout(),
			Retries:    cfg.HTTP.Retries,
			RetryDelay: cfg.HTTP.RetryDelay(),
			UserAgent:  cfg.HTTP.UserAgent,
		}, runStats),
		stats: runStats,
		log:   logging.Component("updater"),
	}
}

// Run performs one refresh. The existing snapshot tree is deleted up front,
// so a failed run leaves a partial tree behind; the caller must not commit
// it, and the next run starts from scratch anyway.
func (u *Updater) Run(ctx context.Context) (*Result, error) {
	started := time.Now().UTC()
	runID := report.NewRunID(started)
	if u.cfg.Report.Enabled {
		u.recorder = report.NewRecorder(runID)
	}

	u.log.Info("refresh starting",
		"run_id", runID, "base_url", u.cfg.BaseURL, "milieux", u.cfg.Milieux)

	if err := u.layout.Reset(); err != nil {
		return nil, err
	}

	result := &Result{RunID: runID, Started: started}

	if err := u.fetchGlobals(ctx); err != nil {
		u.finishReport()
		return nil, err
	}

	for _, milieu := range u.cfg.Milieux {
		sectors, renamed, err := u.fetchMilieu(ctx, milieu)
		if err != nil {
			u.finishReport()
			return nil, fmt.Errorf("milieu %s: %w", milieu, err)
		}
		result.Sectors += sectors
		result.Renamed += renamed
	}

	if err := u.layout.Verify(u.cfg.Milieux, config.MinMilieuFiles); err != nil {
		u.finishReport()
		return nil, fmt.Errorf("snapshot failed verification: %w", err)
	}

	if err := u.layout.WriteDataFormat(config.DataFormatVersion); err != nil {
		u.finishReport()
		return nil, err
	}
	if err := u.layout.WriteTimestamp(started); err != nil {
		u.finishReport()
		return nil, err
	}

	result.ReportPath = u.finishReport()
	result.Stats = u.stats.Summarize()

	u.log.Info("refresh complete", append([]any{
		"run_id", runID, "sectors", result.Sectors, "renamed", result.Renamed,
	}, result.Stats.LogArgs()...)...)

	return result, nil
}

// fetchGlobals downloads the milieu-independent listings at the snapshot
// root.
func (u *Updater) fetchGlobals(ctx context.Context) error {
	files := []struct {
		kind string
		url  string
		path string
	}{
		{report.KindSophonts, u.endpoints.Sophonts(), u.layout.SophontsPath()},
		{report.KindAllegiances, u.endpoints.Allegiances(), u.layout.AllegiancesPath()},
		{report.KindMains, u.endpoints.Mains(), u.layout.MainsPath()},
	}

	for _, f := range files {
		body, err := u.fetch(ctx, f.kind, "", "", f.url)
		if err != nil {
			return err
		}
		if err := writeFile(f.path, body); err != nil {
			return err
		}
	}
	return nil
}

// fetchMilieu downloads one milieu: the universe listing, then every
// sector's data and metadata. Returns the sector count and the number of
// sectors renamed to break name conflicts.
func (u *Updater) fetchMilieu(ctx context.Context, milieu string) (int, int, error) {
	log := u.log.With("milieu", milieu)

	body, err := u.fetch(ctx, report.KindUniverse, milieu, "", u.endpoints.Universe(milieu))
	if err != nil {
		return 0, 0, err
	}

	universe, err := travellermap.ParseUniverse(bytes.TrimPrefix(body, utf8BOM))
	if err != nil {
		return 0, 0, err
	}

	// Rename before writing the universe file so the snapshot's listing and
	// its file names agree.
	mappings, err := travellermap.ResolveNameConflicts(universe)
	if err != nil {
		return 0, 0, err
	}
	for disambiguated, original := range mappings {
		log.Info("renamed duplicate sector", "from", original, "to", disambiguated)
	}

	data, err := universe.Marshal()
	if err != nil {
		return 0, 0, err
	}
	if err := writeFile(u.layout.UniversePath(milieu), data); err != nil {
		return 0, 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.HTTP.Concurrency)
	for _, sector := range universe.Sectors() {
		sector := sector
		g.Go(func() error {
			return u.fetchSector(gctx, milieu, sector, mappings)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	log.Info("milieu complete", "sectors", len(universe.Sectors()), "renamed", len(mappings))
	return len(universe.Sectors()), len(mappings), nil
}

// fetchSector downloads one sector's data and metadata files. Sectors are
// requested by position; the metadata is cross-checked against the universe
// entry to catch the upstream serving the wrong sector.
func (u *Updater) fetchSector(ctx context.Context, milieu string, sector *travellermap.Sector, mappings map[string]string) error {
	name := sector.Name()
	x, y := sector.X(), sector.Y()

	if err := validation.ValidateSectorName(name); err != nil {
		return fmt.Errorf("sector %q: %w", name, err)
	}
	encoded := travellermap.EncodeFileName(name)
	if err := validation.ValidateFileName(encoded); err != nil {
		return fmt.Errorf("sector %q: %w", name, err)
	}

	data, err := u.fetch(ctx, report.KindSector, milieu, name, u.endpoints.SectorData(x, y, milieu))
	if err != nil {
		return fmt.Errorf("sector %q: %w", name, err)
	}
	stripped, err := travellermap.StripSectorTimestamp(string(data))
	if err != nil {
		return fmt.Errorf("sector %q: %w", name, err)
	}
	if err := writeFile(u.layout.SectorDataPath(milieu, encoded), []byte(stripped)); err != nil {
		return err
	}

	raw, err := u.fetch(ctx, report.KindMetadata, milieu, name, u.endpoints.Metadata(x, y, milieu))
	if err != nil {
		return fmt.Errorf("metadata for %q: %w", name, err)
	}

	md, err := travellermap.ParseMetadata(bytes.TrimPrefix(raw, utf8BOM))
	if err != nil {
		return fmt.Errorf("metadata for %q: %w", name, err)
	}

	// A renamed sector's metadata still carries the original name.
	wantName := name
	if original, ok := mappings[name]; ok {
		wantName = original
	}
	if err := md.Validate(wantName, x, y); err != nil {
		return fmt.Errorf("metadata for %q: %w", name, err)
	}

	if _, renamed := mappings[name]; renamed {
		raw, err = travellermap.InsertMetadataName(raw, name)
		if err != nil {
			return fmt.Errorf("metadata for %q: %w", name, err)
		}
	}

	return writeFile(u.layout.MetadataPath(milieu, encoded), raw)
}

// fetch downloads one URL and records the outcome in the run report.
func (u *Updater) fetch(ctx context.Context, kind, milieu, name, rawURL string) ([]byte, error) {
	res, err := u.dl.Do(ctx, rawURL)
	if u.recorder != nil {
		u.recorder.Record(kind, milieu, name, urlPath(rawURL),
			int64(len(res.Body)), res.Attempts, res.Elapsed, err)
	}
	if err != nil {
		return nil, err
	}
	if len(res.Body) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrEmptyResponse, "%s", rawURL)
	}
	return res.Body, nil
}

// finishReport writes the run report, if any, and returns its path.
func (u *Updater) finishReport() string {
	if u.recorder == nil || u.recorder.Len() == 0 {
		return ""
	}

	path, err := u.recorder.WriteFile(u.cfg.Report.Dir,
		report.ParseCompressionType(u.cfg.Report.Compression))
	if err != nil {
		// The report is an operational artifact; losing it must not fail
		// the refresh.
		u.log.Warn("report write failed", "error", err)
		return ""
	}
	return path
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func urlPath(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		return parsed.Path
	}
	return rawURL
}
