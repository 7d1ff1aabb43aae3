// Package form forwards accepted colours to the external response form.
package form

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"whatisyourcolor/internal/config"
	"whatisyourcolor/internal/domain/color"
	"whatisyourcolor/internal/observability"
)

// Client posts submissions in the background. The form's reply is never
// read beyond its status code.
type Client struct {
	url        string
	labelField string
	colorField string
	timeout    time.Duration
	httpClient *http.Client
	logger     *observability.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a form client for cfg
func NewClient(cfg config.FormConfig, logger *observability.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		url:        cfg.URL,
		labelField: cfg.LabelField,
		colorField: cfg.ColorField,
		timeout:    timeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.Component("form"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Submit dispatches the post and returns without waiting for it. The
// background request keeps the caller's trace but not its cancellation.
func (c *Client) Submit(ctx context.Context, label, colorCode string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return color.ErrSinkClosed
	}
	if c.url == "" {
		return fmt.Errorf("%w: form URL is not configured", color.ErrSinkClosed)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		if err := c.post(postCtx, label, colorCode); err != nil {
			c.logger.Warn(postCtx).
				Err(err).
				Str("label", label).
				Str("color", colorCode).
				Msg("Form submission failed")
			return
		}

		c.logger.Debug(postCtx).
			Str("label", label).
			Str("color", colorCode).
			Msg("Form submission sent")
	}()

	return nil
}

func (c *Client) post(ctx context.Context, label, colorCode string) error {
	form := url.Values{}
	form.Set(c.labelField, label)
	form.Set(c.colorField, colorCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post form: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("form responded with status %d", resp.StatusCode)
	}
	return nil
}

// Close stops accepting submissions and waits for in-flight posts until ctx ends
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for form submissions: %w", ctx.Err())
	}
}
