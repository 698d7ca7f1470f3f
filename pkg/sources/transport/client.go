// Package transport provides the rate-limited, retrying HTTP client shared by
// the HTTP based sources
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/geofetch/geofetch/pkg/sources"
)

// Config holds HTTP transport settings
type Config struct {
	Timeout    time.Duration `yaml:"timeout" default:"60s"`
	MaxRetries int           `yaml:"maxRetries" default:"3" validate:"min=0"`
	Backoff    time.Duration `yaml:"backoff" default:"500ms"`
	// RateLimit is requests per second; zero disables limiting
	RateLimit float64 `yaml:"rateLimit" default:"0" validate:"min=0"`
	RateBurst int     `yaml:"rateBurst" default:"1" validate:"min=1"`
	UserAgent string  `yaml:"userAgent" default:"geofetch"`
	Username  string  `yaml:"username"`
	Password  string  `yaml:"password"`
	// Headers are sent with every request, e.g. API tokens
	Headers map[string]string `yaml:"headers"`
}

// StatusError describes a non-2xx response
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Client is a rate-limited HTTP client with exponential backoff
type Client struct {
	log     logrus.FieldLogger
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a client. A nil httpClient uses a default client with the
// configured timeout.
func New(log logrus.FieldLogger, cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		log:     log.WithField("component", "http_transport"),
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Get fetches url and returns the open response body. Non-2xx responses and
// transport failures that survive every retry are reported as
// sources.ErrClient.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) (io.ReadCloser, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.Backoff * time.Duration(1<<uint(attempt-1))

			c.log.WithFields(logrus.Fields{
				"url":     url,
				"attempt": attempt,
				"backoff": backoff,
			}).WithError(lastErr).Debug("Retrying request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err := c.once(ctx, method, url, payload)
		if err == nil {
			return body, nil
		}

		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.retryable() {
			break
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: %w", sources.ErrClient, lastErr)
}

func (c *Client) once(ctx context.Context, method, url string, payload []byte) (io.ReadCloser, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	return resp.Body, nil
}

// GetJSON fetches url and decodes the body into target
func (c *Client) GetJSON(ctx context.Context, url string, target any) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(target); err != nil {
		return fmt.Errorf("%w: decode response from %s: %w", sources.ErrClient, url, err)
	}

	return nil
}

// PostJSON sends payload as a JSON body to url and decodes the response into
// target. Only throttling and server errors are retried.
func (c *Client) PostJSON(ctx context.Context, url string, payload, target any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", url, err)
	}

	body, err := c.do(ctx, http.MethodPost, url, data)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(target); err != nil {
		return fmt.Errorf("%w: decode response from %s: %w", sources.ErrClient, url, err)
	}

	return nil
}

// Download streams url into dest through a temporary sibling, so dest only
// ever appears complete. It returns the number of bytes written.
func (c *Client) Download(ctx context.Context, url, dest string) (int64, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file for %s: %w", dest, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // absent after a successful rename

	n, err := io.Copy(tmp, body)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("%w: read %s: %w", sources.ErrClient, url, err)
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("failed to move download into %s: %w", dest, err)
	}

	c.log.WithFields(logrus.Fields{
		"url":   url,
		"path":  dest,
		"bytes": n,
	}).Debug("Downloaded file")

	return n, nil
}
