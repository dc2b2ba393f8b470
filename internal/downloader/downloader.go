// Package downloader fetches files from the upstream web API.
//
// Transient HTTP failures (timeouts, rate limiting, 5xx) are retried with a
// doubling delay. Anything else fails the download immediately; the weekly
// schedule is the retry mechanism for persistent failures.
package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
	"github.com/cthulhustig/autojimmy-data/internal/logging"
	"github.com/cthulhustig/autojimmy-data/internal/stats"
)

// Options configures a Downloader.
type Options struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Retries is the number of retry attempts for transient failures.
	Retries int

	// RetryDelay is the delay before the first retry. Doubles per attempt.
	RetryDelay time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// Downloader performs HTTP downloads with retry on transient failures.
type Downloader struct {
	client  *http.Client
	opts    Options
	stats   *stats.RunStats
	log     *slog.Logger
	fetched atomic.Int64
}

// New creates a Downloader. stats may be nil.
func New(opts Options, runStats *stats.RunStats) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		stats:  runStats,
		log:    logging.Component("downloader"),
	}
}

// Count returns the number of completed downloads.
func (d *Downloader) Count() int64 {
	return d.fetched.Load()
}

// Result describes how a download went. Attempts and Elapsed are populated
// even when the download ultimately failed.
type Result struct {
	Body     []byte
	Attempts int
	Elapsed  time.Duration
}

// Do downloads url into memory, returning the raw body. The body is not
// transformed in any way; BOM stripping and the like are the caller's call,
// since some payloads are stored byte-for-byte.
func (d *Downloader) Do(ctx context.Context, url string) (Result, error) {
	return d.fetchWithRetry(ctx, url)
}

// fetchWithRetry performs the request, retrying transient HTTP statuses.
func (d *Downloader) fetchWithRetry(ctx context.Context, url string) (Result, error) {
	delay := d.opts.RetryDelay
	retriesLeft := d.opts.Retries
	retriesUsed := 0
	began := time.Now()

	for {
		start := time.Now()
		body, err := d.fetchOnce(ctx, url)
		if err == nil {
			d.fetched.Add(1)
			if d.stats != nil {
				d.stats.RecordDownload(int64(len(body)), time.Since(start), retriesUsed)
			}
			return Result{Body: body, Attempts: retriesUsed + 1, Elapsed: time.Since(began)}, nil
		}

		var statusErr *apperrors.StatusError
		retriable := apperrors.As(err, &statusErr) && statusErr.Retriable()
		if !retriable || retriesLeft == 0 {
			if d.stats != nil {
				d.stats.RecordFailure(retriesUsed)
			}
			res := Result{Attempts: retriesUsed + 1, Elapsed: time.Since(began)}
			if retriable {
				return res, fmt.Errorf("download %s: %w: %w", url, apperrors.ErrRetryExhausted, err)
			}
			return res, fmt.Errorf("download %s: %w", url, err)
		}

		d.log.Warn("download failed, retrying",
			"url", url, "error", err, "delay", delay.String(), "retries_left", retriesLeft)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{Attempts: retriesUsed + 1, Elapsed: time.Since(began)}, ctx.Err()
		case <-timer.C:
		}

		retriesLeft--
		retriesUsed++
		delay *= 2
	}
}

// fetchOnce performs a single GET.
func (d *Downloader) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if d.opts.UserAgent != "" {
		req.Header.Set("User-Agent", d.opts.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused across retries.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, apperrors.NewStatusError(url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
