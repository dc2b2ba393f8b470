// Package snapshot defines the on-disk layout of the map data snapshot and
// the sanity checks run before a refresh is considered successful.
package snapshot

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
)

const (
	// MilieuDirName is the directory holding per-milieu subdirectories.
	MilieuDirName = "milieu"

	// UniverseFileName is the per-milieu sector listing.
	UniverseFileName = "universe.json"

	// Global files at the snapshot root.
	SophontsFileName    = "sophonts.json"
	AllegiancesFileName = "allegiances.json"
	MainsFileName       = "mains.json"

	// TimestampFileName records when the snapshot was last refreshed.
	TimestampFileName = "timestamp.txt"

	// DataFormatFileName records the snapshot layout version.
	DataFormatFileName = "dataformat.txt"

	// TimestampLayout matches the format historical snapshots used.
	TimestampLayout = "2006-01-02 15:04:05.000000"

	// SectorDataExt and MetadataExt are the per-sector file extensions.
	SectorDataExt = ".sec"
	MetadataExt   = ".xml"
)

// Layout resolves paths inside a snapshot tree.
type Layout struct {
	root string
}

// NewLayout creates a Layout rooted at dir.
func NewLayout(dir string) Layout {
	return Layout{root: dir}
}

// Root returns the snapshot root directory.
func (l Layout) Root() string { return l.root }

// SophontsPath returns the path of the sophont listing.
func (l Layout) SophontsPath() string { return filepath.Join(l.root, SophontsFileName) }

// AllegiancesPath returns the path of the allegiance listing.
func (l Layout) AllegiancesPath() string { return filepath.Join(l.root, AllegiancesFileName) }

// MainsPath returns the path of the mains file.
func (l Layout) MainsPath() string { return filepath.Join(l.root, MainsFileName) }

// MilieuDir returns the directory of one milieu.
func (l Layout) MilieuDir(milieu string) string {
	return filepath.Join(l.root, MilieuDirName, milieu)
}

// UniversePath returns the path of a milieu's universe file.
func (l Layout) UniversePath(milieu string) string {
	return filepath.Join(l.MilieuDir(milieu), UniverseFileName)
}

// SectorDataPath returns the path of a sector data file. name must already
// be filename-encoded.
func (l Layout) SectorDataPath(milieu, name string) string {
	return filepath.Join(l.MilieuDir(milieu), name+SectorDataExt)
}

// MetadataPath returns the path of a sector metadata file. name must
// already be filename-encoded.
func (l Layout) MetadataPath(milieu, name string) string {
	return filepath.Join(l.MilieuDir(milieu), name+MetadataExt)
}

// TimestampPath returns the path of the timestamp file.
func (l Layout) TimestampPath() string { return filepath.Join(l.root, TimestampFileName) }

// DataFormatPath returns the path of the dataformat file.
func (l Layout) DataFormatPath() string { return filepath.Join(l.root, DataFormatFileName) }

// Reset deletes any existing snapshot tree and recreates the root. A full
// delete is what lets renamed or removed sectors disappear from the
// snapshot instead of lingering forever.
func (l Layout) Reset() error {
	if err := os.RemoveAll(l.root); err != nil {
		return fmt.Errorf("delete snapshot tree: %w", err)
	}
	if err := os.MkdirAll(l.root, 0755); err != nil {
		return fmt.Errorf("create snapshot root: %w", err)
	}
	return nil
}

// WriteTimestamp writes the refresh start time.
func (l Layout) WriteTimestamp(t time.Time) error {
	data := t.UTC().Format(TimestampLayout)
	if err := os.WriteFile(l.TimestampPath(), []byte(data), 0644); err != nil {
		return fmt.Errorf("write timestamp: %w", err)
	}
	return nil
}

// ReadTimestamp reads the refresh time of an existing snapshot.
func (l Layout) ReadTimestamp() (time.Time, error) {
	data, err := os.ReadFile(l.TimestampPath())
	if err != nil {
		return time.Time{}, fmt.Errorf("read timestamp: %w", err)
	}
	t, err := time.Parse(TimestampLayout, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return t, nil
}

// WriteDataFormat writes the snapshot format version.
func (l Layout) WriteDataFormat(version string) error {
	if err := os.WriteFile(l.DataFormatPath(), []byte(version), 0644); err != nil {
		return fmt.Errorf("write dataformat: %w", err)
	}
	return nil
}

// Verify sanity-checks a snapshot tree: every listed milieu directory must
// hold at least minMilieuFiles files, and no file anywhere in the tree may
// be empty. A failure here means the refresh must not be committed.
func (l Layout) Verify(milieux []string, minMilieuFiles int) error {
	for _, milieu := range milieux {
		dir := l.MilieuDir(milieu)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read milieu directory %s: %w", dir, err)
		}

		files := 0
		for _, entry := range entries {
			if !entry.IsDir() {
				files++
			}
		}
		if files < minMilieuFiles {
			return apperrors.Wrapf(apperrors.ErrTooFewFiles, "%s contains %d files", dir, files)
		}
	}

	return filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() <= 0 {
			return apperrors.Wrapf(apperrors.ErrEmptyFile, "%s", path)
		}
		return nil
	})
}
