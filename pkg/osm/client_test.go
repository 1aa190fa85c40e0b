package osm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NERVsystems/osmextract/pkg/core"
)

const sampleBody = `{"elements":[{"type":"node","id":7,"lat":40.18,"lon":44.51,"tags":{"shop":"bakery"}}]}`

func newTestClient(serverURL string, retry core.RetryOptions) *Client {
	return NewClient(Config{
		BaseURL: serverURL,
		Timeout: 2 * time.Second,
		RPS:     100,
		Burst:   100,
		Retry:   retry,
	})
}

func TestFetchSendsFormQuery(t *testing.T) {
	query := `[out:json][timeout:25];(way["building"](40.17,44.5,40.19,44.52););out geom;`

	var gotMethod, gotContentType, gotUA, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		body, _ := io.ReadAll(r.Body)
		values, _ := url.ParseQuery(string(body))
		gotQuery = values.Get("data")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleBody)
	}))
	defer server.Close()

	client := newTestClient(server.URL, core.DefaultRetryOptions)
	elements, err := client.Fetch(context.Background(), query)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected content type %q", gotContentType)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("unexpected user agent %q", gotUA)
	}
	if gotQuery != query {
		t.Errorf("query not transmitted intact: %q", gotQuery)
	}
	if len(elements) != 1 || elements[0].ID != 7 {
		t.Errorf("unexpected elements: %+v", elements)
	}
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		expectedCode core.ErrorCode
	}{
		{
			name: "Server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			expectedCode: core.ErrServiceUnavailable,
		},
		{
			name: "Rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			expectedCode: core.ErrRateLimit,
		},
		{
			name: "Gateway timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusGatewayTimeout)
			},
			expectedCode: core.ErrServiceTimeout,
		},
		{
			name: "Malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "<html>busy</html>")
			},
			expectedCode: core.ErrParseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			}))
			defer server.Close()

			client := newTestClient(server.URL, core.DefaultRetryOptions)
			_, err := client.Fetch(context.Background(), "q")

			var mcpErr *core.MCPError
			if !errors.As(err, &mcpErr) {
				t.Fatalf("expected MCPError, got %v", err)
			}
			if mcpErr.Code != string(tt.expectedCode) {
				t.Errorf("expected code %s, got %s", tt.expectedCode, mcpErr.Code)
			}
			if mcpErr.Query != "q" {
				t.Errorf("expected query on error, got %q", mcpErr.Query)
			}
			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Errorf("expected exactly one call without retries, got %d", n)
			}
		})
	}
}

func TestFetchRetriesWhenConfigured(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, sampleBody)
	}))
	defer server.Close()

	retry := core.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
	client := newTestClient(server.URL, retry)

	elements, err := client.Fetch(context.Background(), "q")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(elements) != 1 {
		t.Errorf("expected 1 element, got %d", len(elements))
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestFetchBadRequestIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL, core.DefaultRetryOptions.WithAttempts(3))
	if _, err := client.Fetch(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected a single call for a rejected query, got %d", n)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})

	_, err := client.Fetch(context.Background(), "q")
	var mcpErr *core.MCPError
	if !errors.As(err, &mcpErr) {
		t.Fatalf("expected MCPError, got %v", err)
	}
	if mcpErr.Code != string(core.ErrServiceTimeout) {
		t.Errorf("expected %s, got %s", core.ErrServiceTimeout, mcpErr.Code)
	}
}

func TestFetchCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(server.URL, core.DefaultRetryOptions)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := client.Fetch(ctx, "q"); err == nil {
		t.Fatal("expected error after cancellation")
	}
}

func TestCheckHealth(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("data") == "" {
			t.Error("health probe should carry a query")
		}
		w.WriteHeader(status)
	}))
	defer server.Close()

	client := newTestClient(server.URL, core.DefaultRetryOptions)
	if err := client.CheckHealth(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}

	status = http.StatusServiceUnavailable
	if err := client.CheckHealth(context.Background()); err == nil {
		t.Error("expected unhealthy on 503")
	}
}
