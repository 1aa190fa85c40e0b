package osm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmextract/pkg/core"
	"github.com/NERVsystems/osmextract/pkg/tracing"
)

// sharedTransport pools connections across every Client in the process
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// Config configures an Overpass client
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	RPS       float64
	Burst     int
	Retry     core.RetryOptions
	Logger    *slog.Logger

	// Transport overrides the pooled transport, mainly for tests
	Transport http.RoundTripper
}

// DefaultConfig returns the configuration used by the binary when no flags are set
func DefaultConfig() Config {
	return Config{
		BaseURL:   OverpassBaseURL,
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
		RPS:       DefaultRPS,
		Burst:     DefaultBurst,
		Retry:     core.DefaultRetryOptions,
	}
}

// Client issues Overpass queries. It is safe for concurrent use.
type Client struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	retry      core.RetryOptions
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client, filling unset fields from DefaultConfig
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = def.Retry
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base := cfg.Transport
	if base == nil {
		base = sharedTransport
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		retry:     cfg.Retry,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &monitoredTransport{
				base:    base,
				limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
				service: tracing.ServiceOverpass,
			},
		},
		logger: cfg.Logger.With("service", tracing.ServiceOverpass),
	}
}

// BaseURL returns the interpreter endpoint
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch runs one Overpass query and returns its elements. The call is
// bounded by the client timeout and by ctx.
func (c *Client) Fetch(ctx context.Context, query string) ([]Element, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "overpass.fetch",
		trace.WithAttributes(
			attribute.String(tracing.AttrServiceName, tracing.ServiceOverpass),
			attribute.String(tracing.AttrServiceURL, c.baseURL),
			attribute.Int(tracing.AttrExtractQueryBytes, len(query)),
		),
	)
	defer span.End()

	start := time.Now()
	factory := func() (*http.Request, error) {
		form := url.Values{"data": {query}}
		req, err := http.NewRequest(http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		return req, nil
	}

	resp, err := core.WithRetryFactory(withOperation(ctx, "query"), factory, c.httpClient, c.retry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "overpass request failed")
		c.logger.Warn("overpass request failed", "error", err, "duration", time.Since(start))

		var mcpErr *core.MCPError
		if errors.As(err, &mcpErr) {
			return nil, mcpErr.WithQuery(query)
		}
		return nil, core.NewError(core.ErrNetworkError, err.Error()).WithQuery(query)
	}
	defer resp.Body.Close()

	elements, err := DecodeResponse(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid overpass response")
		c.logger.Warn("failed to decode overpass response", "error", err)

		code := core.ErrParseError
		if ctx.Err() != nil {
			code = core.ErrServiceTimeout
		}
		return nil, core.NewError(code, fmt.Sprintf("failed to decode response: %v", err)).
			WithQuery(query).
			WithGuidance("The Overpass API returned an unreadable response. Try again later")
	}

	span.SetAttributes(attribute.Int("overpass.elements", len(elements)))
	span.SetStatus(codes.Ok, "")
	c.logger.Debug("overpass query completed",
		"elements", len(elements),
		"duration", time.Since(start),
	)
	return elements, nil
}

// CheckHealth issues a minimal query to confirm the endpoint answers
func (c *Client) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(withOperation(ctx, "health"), http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create overpass health check request: %w", err)
	}
	req.URL.RawQuery = url.Values{"data": {"[out:json];out meta;"}}.Encode()
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("overpass health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("overpass health check returned status %d", resp.StatusCode)
	}
	return nil
}
