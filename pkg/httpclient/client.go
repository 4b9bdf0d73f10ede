package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// Config tunes a Client. Zero retry waits retry immediately.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
}

// DefaultConfig is used for mail provider calls.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 20,
	}
}

// Client retries transport errors and 5xx answers (except 501) with
// capped exponential backoff.
type Client struct {
	httpClient *http.Client
	config     Config
}

func New(cfg Config) *Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          2 * cfg.MaxConnsPerHost,
				MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
				MaxConnsPerHost:       cfg.MaxConnsPerHost,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		},
	}
}

// addJitter moves d up or down by at most a quarter.
func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := float64(d) / 4
	return d + time.Duration(spread*(2*rand.Float64()-1)) // #nosec G404 -- jitter only
}

// backoff is the wait before retry number attempt (1-based).
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.config.RetryWaitMin
	for i := 1; i < attempt; i++ {
		wait *= 2
		if c.config.RetryWaitMax > 0 && wait >= c.config.RetryWaitMax {
			wait = c.config.RetryWaitMax
			break
		}
	}
	return addJitter(wait)
}

// retryBudget is zero when the body cannot be rewound.
func (c *Client) retryBudget(req *http.Request) int {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return 0
	}
	return c.config.MaxRetries
}

func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError && code != http.StatusNotImplemented
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// wait sleeps before the next attempt and rewinds the body.
func (c *Client) wait(ctx context.Context, req *http.Request, attempt int) error {
	timer := time.NewTimer(c.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewind request body: %w", err)
	}
	req.Body = body
	return nil
}

// Do sends req, replaying it through req.GetBody on retry.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	budget := c.retryBudget(req)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, req, attempt); err != nil {
				return nil, err
			}
		}
		canRetry := attempt < budget

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if canRetry && ctx.Err() == nil && isRetryableError(err) {
				continue
			}
			return nil, fmt.Errorf("http request failed after %d attempts: %w", attempt+1, err)
		}
		if canRetry && retryableStatus(resp.StatusCode) {
			drain(resp)
			continue
		}
		return resp, nil
	}
}

func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := newRequest(ctx, http.MethodGet, url, "", http.NoBody)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := newRequest(ctx, http.MethodPost, url, contentType, body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

func newRequest(ctx context.Context, method, url, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// isRetryableError accepts transport-level failures only.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
