package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/NERVsystems/osmextract/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetryOptions configures retry behavior for HTTP requests
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions performs a single attempt. Callers opt in to retries
// by raising MaxAttempts; the backoff parameters then apply.
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:  1,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
}

// WithAttempts returns a copy of the options allowing n attempts in total
func (o RetryOptions) WithAttempts(n int) RetryOptions {
	if n < 1 {
		n = 1
	}
	o.MaxAttempts = n
	return o
}

// DefaultClient provides a pre-configured HTTP client with pooled connections
var DefaultClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// RequestFactory is a function that creates a new HTTP request.
// A fresh request per attempt lets requests with bodies be retried.
type RequestFactory func() (*http.Request, error)

// retryable reports whether another attempt could plausibly succeed
func retryable(err error) bool {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		switch ErrorCode(mcpErr.Code) {
		case ErrInvalidInput, ErrInternalError:
			return false
		}
	}
	return true
}

// transportError converts a client.Do failure into an MCPError
func transportError(ctx context.Context, err error) *MCPError {
	var netErr net.Error
	timedOut := errors.As(err, &netErr) && netErr.Timeout()
	if timedOut || errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewError(ErrServiceTimeout, fmt.Sprintf("request timed out: %v", err)).
			WithGuidance("Try reducing the extraction area")
	}
	return NewError(ErrNetworkError, fmt.Sprintf("request failed: %v", err)).
		WithGuidance("Check network connectivity to the service")
}

// WithRetryFactory performs HTTP requests created by a factory with retry logic.
// Any 2xx response is returned to the caller, who owns its body.
func WithRetryFactory(ctx context.Context, factory RequestFactory, client *http.Client, options RetryOptions) (*http.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "http.request_factory",
		trace.WithAttributes(
			attribute.Int("http.retry.max_attempts", options.MaxAttempts),
		),
	)
	defer span.End()

	if options.MaxAttempts < 1 {
		options.MaxAttempts = 1
	}
	if client == nil {
		client = DefaultClient
	}

	var lastErr error
	delay := options.InitialDelay
	logger := slog.Default()
	attempts := 0

	for attempt := 0; attempt < options.MaxAttempts; attempt++ {
		if attempt > 0 {
			tracing.AddEvent(ctx, "retry_attempt",
				trace.WithAttributes(
					attribute.Int("attempt", attempt+1),
					attribute.Int64("delay_ms", delay.Milliseconds()),
					attribute.String("error", fmt.Sprintf("%v", lastErr)),
				),
			)

			logger.Info("retrying request",
				"attempt", attempt+1,
				"max_attempts", options.MaxAttempts,
				"delay", delay,
				"last_error", lastErr,
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				span.SetStatus(codes.Error, "request cancelled")
				return nil, transportError(ctx, ctx.Err())
			}

			delay = time.Duration(float64(delay) * options.Multiplier)
			if delay > options.MaxDelay {
				delay = options.MaxDelay
			}
		}
		attempts = attempt + 1

		req, err := factory()
		if err != nil {
			lastErr = NewError(ErrInternalError, "failed to create request").
				WithGuidance("Unable to create HTTP request. Check the request parameters")
			logger.Error("request creation failed",
				"error", err,
				"attempt", attempt+1,
			)
			break
		}
		req = req.WithContext(ctx)

		resp, err := client.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			span.SetAttributes(
				attribute.String(tracing.AttrHTTPMethod, req.Method),
				attribute.String("http.url", req.URL.String()),
				attribute.String("http.host", req.URL.Host),
				attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode),
				attribute.Int("http.response.content_length", int(resp.ContentLength)),
				attribute.Int("http.retry.attempts", attempt+1),
			)
			span.SetStatus(codes.Ok, "")

			logger.Debug("request successful",
				"status", resp.StatusCode,
				"content_length", resp.ContentLength,
				"url", req.URL.String(),
			)
			return resp, nil
		}

		if err != nil {
			lastErr = transportError(ctx, err)
			logger.Error("request failed",
				"error", err,
				"attempt", attempt+1,
				"url", req.URL.String(),
			)
			if ctx.Err() != nil {
				break
			}
		} else {
			lastErr = ServiceError("HTTP", resp.StatusCode, fmt.Sprintf("HTTP status %d", resp.StatusCode))
			logger.Error("request returned error status",
				"status", resp.StatusCode,
				"attempt", attempt+1,
				"url", req.URL.String(),
			)
			_, _ = io.Copy(io.Discard, resp.Body)
			if err := resp.Body.Close(); err != nil {
				logger.Warn("failed to close response body", "error", err)
			}
		}

		if !retryable(lastErr) {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "request failed")
	span.SetAttributes(
		attribute.Int("http.retry.attempts", attempts),
		attribute.String("http.retry.final_error", fmt.Sprintf("%v", lastErr)),
	)

	var mcpErr *MCPError
	if errors.As(lastErr, &mcpErr) {
		if attempts > 1 {
			return nil, mcpErr.WithGuidance(fmt.Sprintf("Failed after %d attempts. %s", attempts, mcpErr.Guidance))
		}
		return nil, mcpErr
	}
	return nil, NewError(ErrNetworkError, fmt.Sprintf("request failed: %v", lastErr))
}
