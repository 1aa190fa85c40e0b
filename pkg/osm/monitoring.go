package osm

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmextract/pkg/tracing"
)

// MonitoringHooks defines hooks for monitoring Overpass requests
type MonitoringHooks struct {
	// OnRequest is called before each HTTP attempt
	OnRequest func(service, operation string)

	// OnResponse is called after each HTTP attempt completes
	OnResponse func(service, operation string, duration time.Duration, success bool)

	// OnRateLimit is called when the limiter delayed a request noticeably
	OnRateLimit func(service string, waitTime time.Duration)

	// OnError is called when an attempt fails before producing a response
	OnError func(service, errorType string)
}

var (
	globalHooks *MonitoringHooks
	hooksMutex  sync.RWMutex
)

// SetMonitoringHooks sets global monitoring hooks
func SetMonitoringHooks(hooks *MonitoringHooks) {
	hooksMutex.Lock()
	defer hooksMutex.Unlock()
	globalHooks = hooks
}

func getMonitoringHooks() *MonitoringHooks {
	hooksMutex.RLock()
	defer hooksMutex.RUnlock()
	return globalHooks
}

type operationKey struct{}

// withOperation tags the context with the operation name reported to hooks
func withOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

func operationFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok {
		return op
	}
	return "unknown"
}

// monitoredTransport applies the client's rate limit to every attempt
// and reports each attempt to the monitoring hooks.
type monitoredTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
	service string
}

func (t *monitoredTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	operation := operationFrom(ctx)

	hooks := getMonitoringHooks()
	if hooks != nil && hooks.OnRequest != nil {
		hooks.OnRequest(t.service, operation)
	}

	start := time.Now()
	if err := t.waitForRateLimit(ctx); err != nil {
		if hooks != nil && hooks.OnError != nil {
			hooks.OnError(t.service, "rate_limit_wait_error")
		}
		return nil, err
	}

	waitTime := time.Since(start)
	if waitTime > 100*time.Millisecond {
		if hooks != nil && hooks.OnRateLimit != nil {
			hooks.OnRateLimit(t.service, waitTime)
		}
	}

	requestStart := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(requestStart)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	tracing.SetAttributes(ctx, tracing.ServiceAttributes(t.service, operation, req.URL.String(), status)...)

	success := err == nil && resp != nil && resp.StatusCode < 400
	if hooks != nil && hooks.OnResponse != nil {
		hooks.OnResponse(t.service, operation, duration, success)
	}
	if err != nil && hooks != nil && hooks.OnError != nil {
		hooks.OnError(t.service, "request_error")
	}

	return resp, err
}

func (t *monitoredTransport) waitForRateLimit(ctx context.Context) error {
	if t.limiter == nil || t.limiter.Allow() {
		return nil
	}

	startWait := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(
			attribute.String(tracing.AttrRateLimitService, t.service),
		),
	)

	err := t.limiter.Wait(ctx)

	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrRateLimitService, t.service),
		attribute.Int64(tracing.AttrRateLimitWaitMs, time.Since(startWait).Milliseconds()),
	)
	return err
}
