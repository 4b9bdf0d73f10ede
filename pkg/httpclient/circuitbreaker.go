package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig tunes the breaker in front of one upstream.
type CircuitBreakerConfig struct {
	Name string

	// MaxRequests is the probe budget while half-open; 0 means 1.
	MaxRequests uint32
	// Interval resets the closed-state counters; 0 keeps them forever.
	Interval time.Duration
	// Timeout is the open period before the first probe.
	Timeout time.Duration

	// The breaker opens when at least MinRequests were counted and the
	// failure share reaches FailureRatio.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitBreakerConfig suits a third-party mail API.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ErrCircuitOpen is returned without contacting the upstream.
var ErrCircuitOpen = gobreaker.ErrOpenState

var breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gamelog",
	Subsystem: "httpclient",
	Name:      "breaker_state",
	Help:      "Breaker state per upstream: 0 closed, 1 half-open, 2 open.",
}, []string{"upstream"})

var stateValues = map[gobreaker.State]float64{
	gobreaker.StateClosed:   0,
	gobreaker.StateHalfOpen: 1,
	gobreaker.StateOpen:     2,
}

// tripsBreaker reports whether an upstream status counts against it. Other
// 4xx answers are the caller's fault and pass through.
func tripsBreaker(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

// CircuitBreakerClient is a Client guarded by a gobreaker breaker.
type CircuitBreakerClient struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	name    string
}

func NewCircuitBreakerClient(client *Client, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	trip := func(c gobreaker.Counts) bool {
		return c.Requests >= cfg.MinRequests &&
			float64(c.TotalFailures) >= cfg.FailureRatio*float64(c.Requests)
	}

	onChange := func(name string, from, to gobreaker.State) {
		breakerState.WithLabelValues(name).Set(stateValues[to])
		logger.Warn("breaker state changed",
			slog.String("upstream", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}

	breakerState.WithLabelValues(cfg.Name).Set(stateValues[gobreaker.StateClosed])

	return &CircuitBreakerClient{
		client: client,
		name:   cfg.Name,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:          cfg.Name,
			MaxRequests:   cfg.MaxRequests,
			Interval:      cfg.Interval,
			Timeout:       cfg.Timeout,
			ReadyToTrip:   trip,
			OnStateChange: onChange,
		}),
	}
}

// Do sends req unless the breaker is open. A tripping status is consumed
// and returned as an error built by ParseResponseError.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		switch {
		case err != nil:
			return nil, err
		case tripsBreaker(resp.StatusCode):
			return nil, fmt.Errorf("%s: %w", c.name, ParseResponseError(resp, c.name))
		default:
			return resp, nil
		}
	})
}

func (c *CircuitBreakerClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := newRequest(ctx, http.MethodGet, url, "", http.NoBody)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

func (c *CircuitBreakerClient) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := newRequest(ctx, http.MethodPost, url, contentType, body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// State is exposed for health reporting and tests.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}
