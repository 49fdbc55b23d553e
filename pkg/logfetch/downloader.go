// Package logfetch downloads CI job logs from the provider's log archive,
// falling back to a secondary source when the primary is unavailable.
package logfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for log download operations.
var (
	logDownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cidb_log_downloads_total",
		Help: "Total log download attempts by outcome",
	}, []string{"outcome"}) // "ok", "failed", "skipped"

	logDownloadRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cidb_log_download_retries_total",
		Help: "Total retries after connection resets during log download",
	})

	logDownloadFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cidb_log_download_fallbacks_total",
		Help: "Total fallbacks to the secondary log source",
	})
)

// Defaults for the downloader.
const (
	DefaultRetries    = 3
	DefaultRetryDelay = 3 * time.Second
)

// jobIDPlaceholder is substituted with the job ID in URL templates.
const jobIDPlaceholder = "{job_id}"

// Downloader fetches job logs. Connection resets on the primary source are
// retried a bounded number of times; any other network failure switches to
// the secondary source immediately. Exhausting both sources is not an error:
// missing logs are an expected condition and the caller checks the returned
// flag instead.
type Downloader struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the downloader configuration.
type Config struct {
	// PrimaryURL is the URL template of the primary log source. The
	// {job_id} placeholder is replaced with the job ID.
	PrimaryURL string

	// SecondaryURL is the URL template of the fallback log source.
	// Optional; without it only the primary source is tried.
	SecondaryURL string

	// Retries is the number of additional attempts per source after a
	// connection reset, so a source is tried up to Retries+1 times.
	Retries int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// HTTPTimeout for individual requests.
	HTTPTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig(primaryURL, secondaryURL string) Config {
	return Config{
		PrimaryURL:   primaryURL,
		SecondaryURL: secondaryURL,
		Retries:      DefaultRetries,
		RetryDelay:   DefaultRetryDelay,
		HTTPTimeout:  60 * time.Second,
	}
}

// New creates a new log downloader.
func New(cfg Config) (*Downloader, error) {
	if cfg.PrimaryURL == "" {
		return nil, fmt.Errorf("primary url is required")
	}

	if !strings.Contains(cfg.PrimaryURL, jobIDPlaceholder) {
		return nil, fmt.Errorf("primary url must contain %s", jobIDPlaceholder)
	}

	if cfg.SecondaryURL != "" && !strings.Contains(cfg.SecondaryURL, jobIDPlaceholder) {
		return nil, fmt.Errorf("secondary url must contain %s", jobIDPlaceholder)
	}

	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}

	return &Downloader{
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		config: cfg,
		logger: log.With().Str("component", "logfetch").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (d *Downloader) SetHTTPClient(client *http.Client) {
	d.httpClient = client
}

// Download fetches the log for jobID into destination. It returns true if
// the log was written. A false return with a nil error means the log could
// not be obtained from any source, or the destination already exists and
// overwrite is false.
func (d *Downloader) Download(ctx context.Context, jobID int64, destination string, overwrite bool) (bool, error) {
	if !overwrite {
		if _, err := os.Stat(destination); err == nil {
			d.logger.Debug().
				Int64("job_id", jobID).
				Str("destination", destination).
				Msg("Log already exists, skipping download")
			logDownloadsTotal.WithLabelValues("skipped").Inc()
			return false, nil
		}
	}

	sources := []string{d.config.PrimaryURL}
	if d.config.SecondaryURL != "" {
		sources = append(sources, d.config.SecondaryURL)
	}

	for i, template := range sources {
		url := strings.ReplaceAll(template, jobIDPlaceholder, fmt.Sprintf("%d", jobID))

		body, err := d.fetchWithRetry(ctx, jobID, url)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if i+1 < len(sources) {
				logDownloadFallbacksTotal.Inc()
				d.logger.Info().
					Int64("job_id", jobID).
					Err(err).
					Msg("Primary log source failed, trying secondary")
			}
			continue
		}

		if err := writeFile(destination, body); err != nil {
			return false, fmt.Errorf("write log for job %d: %w", jobID, err)
		}

		logDownloadsTotal.WithLabelValues("ok").Inc()
		d.logger.Debug().
			Int64("job_id", jobID).
			Str("destination", destination).
			Int("bytes", len(body)).
			Msg("Downloaded log")

		return true, nil
	}

	logDownloadsTotal.WithLabelValues("failed").Inc()
	d.logger.Error().
		Int64("job_id", jobID).
		Msg("Could not download log from any source")

	return false, nil
}

// fetchWithRetry fetches url, retrying after connection resets up to the
// configured number of times. Any other failure aborts the source.
func (d *Downloader) fetchWithRetry(ctx context.Context, jobID int64, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= d.config.Retries; attempt++ {
		body, err := d.fetch(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !isConnectionReset(err) {
			return nil, err
		}

		if attempt < d.config.Retries {
			logDownloadRetriesTotal.Inc()
			d.logger.Warn().
				Int64("job_id", jobID).
				Int("attempt", attempt+1).
				Err(err).
				Msg("Connection reset while downloading log, retrying")

			timer := time.NewTimer(d.config.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return nil, lastErr
}

func (d *Downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read log body: %w", err)
	}

	return body, nil
}

// isConnectionReset reports whether err stems from a peer connection reset.
func isConnectionReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET)
}

func writeFile(destination string, data []byte) error {
	if dir := filepath.Dir(destination); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(destination, data, 0o644)
}
