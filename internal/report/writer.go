// Package report records what each update run downloaded.
//
// Every run writes one Parquet file of per-download rows. The files are an
// operational artifact, not part of the committed snapshot; the stats
// subcommand queries them with DuckDB to show trends across runs.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// Download kinds. One row is written per fetched file.
const (
	KindSophonts    = "sophonts"
	KindAllegiances = "allegiances"
	KindMains       = "mains"
	KindUniverse    = "universe"
	KindSector      = "sector"
	KindMetadata    = "metadata"
)

// DownloadRow is one download in Parquet format.
type DownloadRow struct {
	RunID       string `parquet:"run_id,zstd"`
	Kind        string `parquet:"kind,zstd"`
	Milieu      string `parquet:"milieu,optional,zstd"`
	Name        string `parquet:"name,optional,zstd"`
	URLPath     string `parquet:"url_path,zstd"`
	TimestampMs int64  `parquet:"timestamp_ms"`
	Bytes       int64  `parquet:"bytes"`
	Attempts    int32  `parquet:"attempts"`
	DurationMs  int64  `parquet:"duration_ms"`
	OK          bool   `parquet:"ok"`
	Error       string `parquet:"error,optional,zstd"`
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// NewRunID returns the identifier for a run starting at t. It doubles as
// the sortable part of the report file name.
func NewRunID(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// FileName returns the report file name for a run.
func FileName(runID string) string {
	return "run-" + runID + ".parquet"
}

// Recorder buffers download rows for one run and writes them out at the
// end. Runs download a few thousand files at most, so buffering in memory
// is fine.
type Recorder struct {
	mu    sync.Mutex
	runID string
	rows  []DownloadRow
}

// NewRecorder creates a Recorder for a run.
func NewRecorder(runID string) *Recorder {
	return &Recorder{runID: runID}
}

// RunID returns the run identifier.
func (r *Recorder) RunID() string {
	return r.runID
}

// Record adds one download row. err may be nil.
func (r *Recorder) Record(kind, milieu, name, urlPath string, bytes int64, attempts int, elapsed time.Duration, err error) {
	row := DownloadRow{
		RunID:       r.runID,
		Kind:        kind,
		Milieu:      milieu,
		Name:        name,
		URLPath:     urlPath,
		TimestampMs: time.Now().UnixMilli(),
		Bytes:       bytes,
		Attempts:    int32(attempts),
		DurationMs:  elapsed.Milliseconds(),
		OK:          err == nil,
	}
	if err != nil {
		row.Error = err.Error()
	}

	r.mu.Lock()
	r.rows = append(r.rows, row)
	r.mu.Unlock()
}

// Len returns the number of recorded rows.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// WriteFile writes the buffered rows to dir as one Parquet file and
// returns its path.
func (r *Recorder) WriteFile(dir string, compression CompressionType) (string, error) {
	r.mu.Lock()
	rows := make([]DownloadRow, len(r.rows))
	copy(rows, r.rows)
	r.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	path := filepath.Join(dir, FileName(r.runID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}

	writer := parquet.NewGenericWriter[DownloadRow](f,
		parquet.Compression(getCompression(compression)))

	if _, err := writer.Write(rows); err != nil {
		f.Close()
		return "", fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("close writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}

	return path, nil
}

// ReadFile reads all rows from a report file, mostly for tests and
// debugging; the stats subcommand goes through DuckDB instead.
func ReadFile(path string) ([]DownloadRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat report: %w", err)
	}

	reader := parquet.NewGenericReader[DownloadRow](f)
	defer reader.Close()

	rows := make([]DownloadRow, 0, info.Size()/64)
	buf := make([]DownloadRow, 256)
	for {
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
	}
	return rows, nil
}
