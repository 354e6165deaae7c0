package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/BadgerOps/pyboot/internal/safety"
)

const (
	defaultAttempts   = 3
	maxErrorBodyBytes = 512
)

// ProgressFunc is called as bytes arrive. totalBytes is 0 when unknown.
type ProgressFunc func(bytesDownloaded, totalBytes int64)

// DownloadOptions describes one archive download.
type DownloadOptions struct {
	URL              string
	DestPath         string
	Headers          map[string]string
	ExpectedChecksum string // SHA256 hex, empty to skip
	ExpectedSize     int64  // 0 when unknown; enables resuming a partial file
	RetryCount       int    // total attempts, 0 means 3
	OnProgress       ProgressFunc
}

// DownloadResult describes a completed download.
type DownloadResult struct {
	Path     string
	Size     int64
	SHA256   string
	Resumed  bool
	Attempts int
	Duration time.Duration
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Status)
}

// Client fetches archives over HTTP with retries, resumption of partial
// files and integrity checks.
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	userAgent   string
	backoffFunc func(attempt int) time.Duration
}

// NewClient creates a client that honours the proxy environment variables.
// There is no overall request timeout; interpreter archives are large, so
// callers bound downloads through the context.
func NewClient(logger *slog.Logger) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   2,
	}
	return &Client{
		httpClient:  &http.Client{Transport: transport},
		logger:      logger,
		userAgent:   "pyboot/1.0",
		backoffFunc: calculateBackoffDelay,
	}
}

// Download fetches opts.URL into opts.DestPath. Transient failures are
// retried with backoff; client errors (4xx other than 429) are not. A
// cancelled download leaves its partial file so a later call can resume it.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) (*DownloadResult, error) {
	attempts := opts.RetryCount
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	if err := os.MkdirAll(filepath.Dir(opts.DestPath), 0755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	start := time.Now()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("download cancelled: %w", err)
		}

		offset := resumeOffset(opts)
		result, err := c.fetch(ctx, opts, offset)
		if err == nil {
			result.Resumed = offset > 0 && result.Size > offset
			result.Attempts = attempt
			result.Duration = time.Since(start)
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("download cancelled: %w", err)
		}
		if shouldNotRetry(err) {
			_ = os.Remove(opts.DestPath)
			return nil, err
		}
		if attempt >= attempts {
			return nil, fmt.Errorf("download failed after %d attempts: %w", attempts, err)
		}

		delay := c.backoffFunc(attempt)
		c.logger.Warn("download attempt failed, retrying",
			"url", opts.URL, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("download cancelled during retry: %w", ctx.Err())
		}
	}
}

// resumeOffset returns the size of a usable partial file at DestPath. A
// partial file can only be trusted when the final size is known; anything
// else is discarded.
func resumeOffset(opts DownloadOptions) int64 {
	fi, err := os.Stat(opts.DestPath)
	if err != nil {
		return 0
	}
	if opts.ExpectedSize > 0 && fi.Size() < opts.ExpectedSize {
		return fi.Size()
	}
	_ = os.Remove(opts.DestPath)
	return 0
}

// fetch performs one request, appending to DestPath from offset.
func (c *Client) fetch(ctx context.Context, opts DownloadOptions, offset int64) (*DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", opts.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       safety.Snippet(resp.Body, maxErrorBodyBytes),
		}
	}
	if resp.StatusCode != http.StatusPartialContent {
		// The server ignored the range and sent the whole file.
		offset = 0
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if offset > 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	out, err := os.OpenFile(opts.DestPath, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", opts.DestPath, err)
	}

	total := opts.ExpectedSize
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}

	var body io.Reader = resp.Body
	if opts.OnProgress != nil {
		body = &progressReader{reader: resp.Body, callback: opts.OnProgress, current: offset, total: total}
	}
	written, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("receiving %s: %w", filepath.Base(opts.DestPath), copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("writing %s: %w", opts.DestPath, closeErr)
	}

	return c.verify(opts, offset+written)
}

// verify hashes the complete file and checks it against the expected
// checksum or size. A file that fails is removed.
func (c *Client) verify(opts DownloadOptions, size int64) (*DownloadResult, error) {
	sum, err := hashFile(opts.DestPath)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", opts.DestPath, err)
	}

	switch {
	case opts.ExpectedChecksum != "" && sum != opts.ExpectedChecksum:
		_ = os.Remove(opts.DestPath)
		return nil, fmt.Errorf("checksum mismatch: got %s, expected %s", sum, opts.ExpectedChecksum)
	case opts.ExpectedChecksum == "" && opts.ExpectedSize > 0 && size != opts.ExpectedSize:
		_ = os.Remove(opts.DestPath)
		return nil, fmt.Errorf("size mismatch: got %d bytes, expected %d", size, opts.ExpectedSize)
	case opts.ExpectedSize > 0 && size != opts.ExpectedSize:
		c.logger.Warn("size differs from expected but checksum matches",
			"path", opts.DestPath, "size", size, "expected", opts.ExpectedSize)
	}

	return &DownloadResult{Path: opts.DestPath, Size: size, SHA256: sum}, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// calculateBackoffDelay is 1s doubled per attempt plus up to 50% jitter.
func calculateBackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := time.Second << (attempt - 1)
	return base + time.Duration(rand.Int63n(int64(base/2)+1))
}

func shouldNotRetry(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusTooManyRequests
}

type progressReader struct {
	reader   io.Reader
	callback ProgressFunc
	current  int64
	total    int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.current += int64(n)
		pr.callback(pr.current, pr.total)
	}
	return n, err
}
