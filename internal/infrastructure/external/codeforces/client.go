package codeforces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/metrics"
)

// API method names.
const (
	MethodUserInfo   = "user.info"
	MethodUserStatus = "user.status"
	MethodUserRating = "user.rating"
)

// maxResponseBytes bounds a decoded response; user.status for prolific
// handles runs to tens of megabytes.
const maxResponseBytes = 64 << 20

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Codeforces API client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://codeforces.com/api
	BaseURL string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// RequestsPerSecond limits outgoing calls. Codeforces allows one call
	// per two seconds per IP.
	RequestsPerSecond float64

	// Burst is the limiter bucket size
	Burst int

	// Breaker configures failure isolation
	Breaker BreakerConfig

	// UserAgent is sent with every request
	UserAgent string
}

// BreakerConfig configures the circuit breaker around API calls.
type BreakerConfig struct {
	// MaxRequests allowed while half-open
	MaxRequests uint32

	// Interval after which closed-state counts reset
	Interval time.Duration

	// Timeout before an open breaker turns half-open
	Timeout time.Duration

	// MinRequests before the failure ratio is considered
	MinRequests uint32

	// FailureRatio that trips the breaker
	FailureRatio float64
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:           "https://codeforces.com/api",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 0.5,
		Burst:             1,
		Breaker: BreakerConfig{
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      2 * time.Minute,
			MinRequests:  5,
			FailureRatio: 0.6,
		},
		UserAgent: "cf-progress-hub/1.0",
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Codeforces API client. It never retries; a failed call is
// returned to the caller as an *Error.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[json.RawMessage]
	metrics    *metrics.Metrics
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLimiter replaces the request limiter; rate.NewLimiter(rate.Inf, 0)
// disables throttling.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates a new Codeforces API client.
func NewClient(config ClientConfig, opts ...Option) *Client {
	def := DefaultClientConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.Breaker.FailureRatio <= 0 {
		config.Breaker = def.Breaker
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     slog.Default(),
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = c.newBreaker()
	return c
}

func (c *Client) newBreaker() *gobreaker.CircuitBreaker[json.RawMessage] {
	bc := c.config.Breaker
	return gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "codeforces-api",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= bc.FailureRatio
		},
		// an unknown handle or a cancelled caller says nothing about upstream health
		IsSuccessful: func(err error) bool {
			return err == nil ||
				KindOf(err) == KindNotFound ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			c.metrics.SetBreakerState(stateValue(to))
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// USER OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchProfile fetches the rating summary of a handle.
func (c *Client) FetchProfile(ctx context.Context, handle string) (*ProfileDTO, error) {
	profiles, err := call[[]ProfileDTO](ctx, c, MethodUserInfo, url.Values{"handles": {handle}})
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, &Error{Kind: KindNotFound, Op: MethodUserInfo, Detail: "empty result for handle " + handle}
	}
	return &profiles[0], nil
}

// FetchSubmissions fetches every submission of a handle, newest first.
func (c *Client) FetchSubmissions(ctx context.Context, handle string) ([]SubmissionDTO, error) {
	return call[[]SubmissionDTO](ctx, c, MethodUserStatus, url.Values{"handle": {handle}})
}

// FetchRatingHistory fetches the rated contest history of a handle, oldest first.
func (c *Client) FetchRatingHistory(ctx context.Context, handle string) ([]RatingChangeDTO, error) {
	return call[[]RatingChangeDTO](ctx, c, MethodUserRating, url.Values{"handle": {handle}})
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// call performs one API call and decodes its result into T.
func call[T any](ctx context.Context, c *Client, method string, params url.Values) (T, error) {
	var out T

	raw, err := c.doRequest(ctx, method, params)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &Error{Kind: KindTransportFailure, Op: method, Detail: "decode result", Err: err}
	}
	return out, nil
}

// doRequest passes one request through the limiter and the circuit breaker.
func (c *Client) doRequest(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.ObserveUpstream(method, metrics.ResultRejected, time.Since(start))
		return nil, &Error{Kind: KindTransportFailure, Op: method, Detail: "rate limiter wait", Err: err}
	}

	raw, err := c.breaker.Execute(func() (json.RawMessage, error) {
		return c.doSingleRequest(ctx, method, params)
	})

	result := metrics.ResultSuccess
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = metrics.ResultRejected
		err = &Error{Kind: KindTransportFailure, Op: method, Detail: "circuit breaker rejected call", Err: err}
	case err != nil:
		result = KindOf(err).String()
	}
	c.metrics.ObserveUpstream(method, result, time.Since(start))

	if err != nil {
		c.logger.Debug("codeforces request failed", "method", method, "error", err)
		return nil, err
	}
	return raw, nil
}

// doSingleRequest performs a single HTTP request and unwraps the envelope.
func (c *Client) doSingleRequest(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	fullURL := c.config.BaseURL + "/" + method
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransportFailure, Op: method, Detail: "create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransportFailure, Op: method, Detail: "http request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Kind: KindTransportFailure, Op: method, StatusCode: resp.StatusCode, Detail: "read response", Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &Error{
			Kind:       KindRateLimited,
			Op:         method,
			StatusCode: resp.StatusCode,
			Detail:     "too many requests",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &Error{Kind: KindUpstreamError, Op: method, StatusCode: resp.StatusCode, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
		}
		return nil, &Error{Kind: KindTransportFailure, Op: method, StatusCode: resp.StatusCode, Detail: "decode envelope", Err: err}
	}

	if env.Status != StatusOK {
		return nil, &Error{Kind: classifyComment(env.Comment), Op: method, StatusCode: resp.StatusCode, Detail: env.Comment}
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{Kind: KindUpstreamError, Op: method, StatusCode: resp.StatusCode, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	return env.Result, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
