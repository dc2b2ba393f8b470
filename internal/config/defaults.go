package config

import "time"

// =============================================================================
// Upstream Defaults
// =============================================================================

const (
	// DefaultBaseURL is the Traveller Map instance the snapshot is taken from.
	// Override via config: base_url
	DefaultBaseURL = "https://www.travellermap.com"

	// DefaultDataDir is the directory the snapshot tree is written under.
	// Override via config: data_dir
	DefaultDataDir = "map"

	// DataFormatVersion is written to dataformat.txt so consumers can detect
	// incompatible snapshot layouts.
	DataFormatVersion = "4.0"
)

// DefaultMilieux is the set of milieux mirrored when the config does not
// list its own. M1105 is the one the downstream application defaults to.
var DefaultMilieux = []string{"IW", "M0", "M990", "M1105", "M1120", "M1201", "M1248", "M1900"}

// =============================================================================
// HTTP Defaults
// =============================================================================

const (
	// DefaultHTTPTimeout is the timeout for a single request.
	// Override via config: http.timeout_sec
	DefaultHTTPTimeout = 60 * time.Second

	// DefaultHTTPRetries is the number of retry attempts after a transient
	// HTTP failure.
	// Override via config: http.retries
	DefaultHTTPRetries = 3

	// DefaultRetryDelay is the delay before the first retry. The delay
	// doubles after each failed attempt.
	// Override via config: http.retry_delay_sec
	DefaultRetryDelay = 5 * time.Second

	// DefaultConcurrency is the number of in-flight sector downloads.
	// The scheduled job runs with 1 so output ordering matches the
	// historical snapshots exactly.
	// Override via config: http.concurrency
	DefaultConcurrency = 1

	// DefaultUserAgent identifies the updater to the upstream server.
	DefaultUserAgent = "autojimmy-data-updater"
)

// =============================================================================
// Snapshot Defaults
// =============================================================================

const (
	// MinMilieuFiles is the smallest plausible file count for a milieu
	// directory: the universe file plus the .sec and .xml of one sector.
	MinMilieuFiles = 3
)

// =============================================================================
// Report Defaults
// =============================================================================

const (
	// DefaultReportDir is where per-run download reports are written.
	// Override via config: report.dir
	DefaultReportDir = "reports"

	// DefaultReportCompression is the parquet compression codec for reports.
	// Override via config: report.compression
	DefaultReportCompression = "zstd"
)

// =============================================================================
// Git Defaults
// =============================================================================

const (
	// DefaultCommitPrefix starts every automated commit message.
	// Override via config: git.message_prefix
	DefaultCommitPrefix = "Map data update"

	// DefaultRemote is the remote pushed to when git.push is enabled.
	// Override via config: git.remote
	DefaultRemote = "origin"
)
