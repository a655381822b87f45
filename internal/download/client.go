package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ccs-host/internal/logger"
	"ccs-host/internal/models"
)

// ErrorCategory classifies a failed attempt and selects the retry policy.
type ErrorCategory string

const (
	// connection reset mid-transfer, retried with 2^n backoff
	CategoryReset ErrorCategory = "reset"
	// attempt timed out, retried with 2^n backoff and a growing per-attempt timeout
	CategoryTimeout ErrorCategory = "timeout"
	// 4xx other than 429 and other non-retryable failures
	CategoryPermanent ErrorCategory = "permanent"
	// anything else, retried with 2^(n-1) backoff
	CategoryUnknown ErrorCategory = "unknown"
)

const (
	maxAttempts      = 5
	maxRedirects     = 5
	initialTimeout   = 30 * time.Second
	timeoutCeiling   = 180 * time.Second
	timeoutGrowth    = 1.5
)

// DownloadError carries the category of the last failed attempt.
type DownloadError struct {
	Category ErrorCategory
	URL      string
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download '%s' failed (%s): %v", e.URL, e.Category, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

/**
 * Client fetches release artifacts over HTTP
 * @description
 * - Proxy selection honors http_proxy/https_proxy/all_proxy and no_proxy,
 *   lowercase and uppercase variants
 * - Redirects are followed up to 5 hops
 * - Retries are keyed by error category, every attempt has a hard timeout
 */
type Client struct {
	Timeout time.Duration
	// sleep is replaceable so tests can observe backoff without waiting
	sleep func(time.Duration)
}

// NewClient creates a download client with the default attempt timeout.
func NewClient() *Client {
	return &Client{
		Timeout: initialTimeout,
		sleep:   time.Sleep,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: proxyFromEnvironment,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// allow exactly maxRedirects hops; fail on the next one
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

/**
 * Classify an attempt failure into a retry category
 * @description
 * - ECONNRESET and "connection reset" strings map to reset
 * - net.Error timeouts and context deadline map to timeout
 * - HTTP 4xx except 429 map to permanent
 * - everything else is unknown (retryable)
 */
func classify(err error) ErrorCategory {
	var de *DownloadError
	if errors.As(err, &de) {
		return de.Category
	}
	if errors.Is(err, syscall.ECONNRESET) || strings.Contains(err.Error(), "connection reset") {
		return CategoryReset
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	return CategoryUnknown
}

// backoffDelay returns the wait before retry attempt n (1-based failure count).
func backoffDelay(category ErrorCategory, n int) time.Duration {
	switch category {
	case CategoryReset, CategoryTimeout:
		return time.Duration(1<<uint(n)) * time.Second // 2^n
	default:
		return time.Duration(1<<uint(n-1)) * time.Second // 2^(n-1)
	}
}

func statusError(url string, code int) error {
	category := CategoryUnknown
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		category = CategoryPermanent
	}
	return &DownloadError{
		Category: category,
		URL:      url,
		Err:      fmt.Errorf("server returned HTTP %d", code),
	}
}

func (c *Client) attempt(ctx context.Context, url string, timeout time.Duration, sink io.Writer) error {
	client := newHTTPClient(timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &DownloadError{Category: CategoryPermanent, URL: url, Err: err}
	}

	rsp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return statusError(url, rsp.StatusCode)
	}
	if _, err := io.Copy(sink, rsp.Body); err != nil {
		return err
	}
	return nil
}

/**
 * Run the retry loop around one attempt function
 * @returns {int} Number of attempts consumed
 * @description
 * - Permanent failures abort immediately without consuming retries
 * - Timeout retries grow the per-attempt timeout by 1.5x up to a ceiling
 */
func (c *Client) retry(ctx context.Context, url string, open func() (io.Writer, func(failed bool), error)) (int, error) {
	timeout := c.Timeout
	var lastErr error

	for n := 1; n <= maxAttempts; n++ {
		sink, done, err := open()
		if err != nil {
			return n, err
		}
		err = c.attempt(ctx, url, timeout, sink)
		done(err != nil)
		if err == nil {
			return n, nil
		}

		category := classify(err)
		var de *DownloadError
		if errors.As(err, &de) {
			lastErr = de
		} else {
			lastErr = &DownloadError{Category: category, URL: url, Err: err}
		}
		if category == CategoryPermanent {
			return n, lastErr
		}
		if n == maxAttempts {
			break
		}
		if category == CategoryTimeout {
			grown := time.Duration(float64(timeout) * timeoutGrowth)
			if grown > timeoutCeiling {
				grown = timeoutCeiling
			}
			timeout = grown
		}

		delay := backoffDelay(category, n)
		logger.Debugf("Download attempt %d/%d for '%s' failed (%s), retrying in %v",
			n, maxAttempts, url, category, delay)
		c.sleep(delay)
	}
	return maxAttempts, lastErr
}

// Fetch downloads a URL into memory.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var buf bytes.Buffer
	_, err := c.retry(ctx, url, func() (io.Writer, func(bool), error) {
		buf.Reset()
		return &buf, func(bool) {}, nil
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FetchText downloads a URL and returns the body as text.
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	data, err := c.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

/**
 * Download a URL to a file
 * @returns {models.DownloadOutcome} Terminal result of the retry loop
 * @description
 * - Each attempt writes to a fresh truncated file
 * - A partially written destination is always deleted before a failure
 *   surfaces
 */
func (c *Client) FetchFile(ctx context.Context, url, destPath string) models.DownloadOutcome {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return models.DownloadOutcome{
			Success:      false,
			ErrorMessage: fmt.Sprintf("create directory '%s': %v", filepath.Dir(destPath), err),
			AttemptsUsed: 0,
		}
	}

	attempts, err := c.retry(ctx, url, func() (io.Writer, func(bool), error) {
		f, err := os.Create(destPath)
		if err != nil {
			return nil, nil, fmt.Errorf("create '%s': %w", destPath, err)
		}
		return f, func(failed bool) {
			f.Close()
			if failed {
				os.Remove(destPath)
			}
		}, nil
	})
	if err != nil {
		os.Remove(destPath)
		return models.DownloadOutcome{
			Success:      false,
			ErrorMessage: err.Error(),
			AttemptsUsed: attempts,
		}
	}
	return models.DownloadOutcome{
		Success:      true,
		FilePath:     destPath,
		AttemptsUsed: attempts,
	}
}
