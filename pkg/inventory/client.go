// Package inventory fetches and parses the external inventory feed.
package inventory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

const (
	// DefaultTimeout is the default fetch timeout
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResponseSize is the maximum feed body size (10MB)
	DefaultMaxResponseSize = 10 * 1024 * 1024
)

// Client fetches the external inventory JSON with bounded time and size.
type Client struct {
	client  *http.Client
	maxSize int64
	logger  ectologger.Logger
}

// Config holds fetch configuration
type Config struct {
	Timeout         time.Duration
	MaxResponseSize int64
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// DefaultConfig returns default fetch configuration
func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		MaxResponseSize: DefaultMaxResponseSize,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// NewClient creates a new inventory fetch client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = DefaultMaxResponseSize
	}

	transport := &http.Transport{
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		maxSize: cfg.MaxResponseSize,
		logger:  logger,
	}
}

// Fetch GETs the feed body. A caller-supplied deadline on ctx propagates so
// the whole reconciliation run can be aborted if the source is
// unresponsive. Fetch failures map to 422: the request was fine, the
// upstream payload was not usable.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "inventory.Client.Fetch")
	defer span.End()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid inventory url: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.InventoryFetchesTotal.WithLabelValues("network_error").Inc()
		metrics.InventoryFetchDuration.WithLabelValues("network_error").Observe(time.Since(start).Seconds())
		c.logger.WithContext(ctx).WithError(err).Errorf("Inventory fetch failed: %s", url)
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "failed to fetch inventory source: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.InventoryFetchesTotal.WithLabelValues("bad_status").Inc()
		metrics.InventoryFetchDuration.WithLabelValues("bad_status").Observe(time.Since(start).Seconds())
		c.logger.WithContext(ctx).WithFields(map[string]any{"url": url, "status": resp.StatusCode}).Error("Inventory source returned non-2xx status")
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "inventory source returned status %d", resp.StatusCode)
	}

	if resp.ContentLength > c.maxSize {
		metrics.InventoryFetchesTotal.WithLabelValues("too_large").Inc()
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "inventory body too large: %d bytes (max %d)", resp.ContentLength, c.maxSize)
	}

	limitedReader := io.LimitReader(resp.Body, c.maxSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		metrics.InventoryFetchesTotal.WithLabelValues("read_error").Inc()
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "failed to read inventory body: %v", err)
	}
	if int64(len(body)) > c.maxSize {
		metrics.InventoryFetchesTotal.WithLabelValues("too_large").Inc()
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("inventory body too large (max %d bytes)", c.maxSize))
	}

	metrics.InventoryFetchesTotal.WithLabelValues("ok").Inc()
	metrics.InventoryFetchDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	return body, nil
}
