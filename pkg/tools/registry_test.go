package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/NERVsystems/osmextract/pkg/core"
	"github.com/NERVsystems/osmextract/pkg/extract"
	"github.com/NERVsystems/osmextract/pkg/geo"
	"github.com/NERVsystems/osmextract/pkg/monitoring"
)

// stubExtractor records the request it receives
type stubExtractor struct {
	got    extract.Request
	result *extract.Result
	err    error
}

func (s *stubExtractor) Extract(ctx context.Context, req extract.Request) (*extract.Result, error) {
	s.got = req
	return s.result, s.err
}

func handlerFor(t *testing.T, r *Registry, name string) ToolHandler {
	t.Helper()
	for _, def := range r.GetToolDefinitions() {
		if def.Name == name {
			return r.wrapWithTracing(def.Name, def.Handler)
		}
	}
	t.Fatalf("tool %q not registered", name)
	return nil
}

func TestGetToolNames(t *testing.T) {
	names := NewRegistry(nil, &stubExtractor{}).GetToolNames()
	if strings.Join(names, ",") != "get_version,extract_area" {
		t.Errorf("tool names = %v", names)
	}
}

func TestToolDefinitionsMatchNames(t *testing.T) {
	for _, def := range NewRegistry(nil, &stubExtractor{}).GetToolDefinitions() {
		if def.Tool.Name != def.Name {
			t.Errorf("tool %q declares name %q", def.Name, def.Tool.Name)
		}
		if def.Handler == nil {
			t.Errorf("tool %q has no handler", def.Name)
		}
	}
}

func TestExtractAreaTool(t *testing.T) {
	bbox := geo.BoundingBox{MinLon: 44.50, MinLat: 40.17, MaxLon: 44.52, MaxLat: 40.19}
	stub := &stubExtractor{
		result: extract.NewAggregator(nil, nil, nil).DegradedResult(bbox, "fetch roads: down"),
	}
	handler := handlerFor(t, NewRegistry(nil, stub), "extract_area")

	result, err := handler(context.Background(), newToolRequest("extract_area", map[string]any{
		"bbox": map[string]any{
			"min_lon": 44.50, "min_lat": 40.17, "max_lon": 44.52, "max_lat": 40.19,
		},
		"layers": []any{"roads"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	AssertSuccessResult(t, result, "extract_area should succeed")

	if stub.got.Area.BBox == nil || *stub.got.Area.BBox != bbox {
		t.Errorf("bbox not passed through: %+v", stub.got.Area.BBox)
	}
	if len(stub.got.Layers) != 1 || stub.got.Layers[0] != "roads" {
		t.Errorf("layers = %v", stub.got.Layers)
	}

	var decoded struct {
		CRS         string   `json:"crs"`
		Diagnostics []string `json:"diagnostics"`
	}
	if err := ParseResultJSON(result, &decoded); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if decoded.CRS != extract.CRS || len(decoded.Diagnostics) != 1 {
		t.Errorf("unexpected result: %+v", decoded)
	}
}

func TestExtractAreaToolErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		err      error
		wantText string
	}{
		{
			name:     "invalid area",
			args:     map[string]any{},
			err:      core.NewInvalidAreaError("either bbox or polygon is required"),
			wantText: string(core.ErrInvalidArea),
		},
		{
			name:     "unknown layer",
			args:     map[string]any{"layers": []any{"rivers"}},
			err:      core.NewError(core.ErrInvalidParameter, `unknown layer "rivers"`),
			wantText: string(core.ErrInvalidParameter),
		},
		{
			name:     "plain error",
			args:     map[string]any{},
			err:      errors.New("boom"),
			wantText: "boom",
		},
		{
			name:     "malformed arguments",
			args:     map[string]any{"bbox": "not an object"},
			wantText: "Failed to parse input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handlerFor(t, NewRegistry(nil, &stubExtractor{err: tt.err}), "extract_area")

			result, err := handler(context.Background(), newToolRequest("extract_area", tt.args))
			if err != nil {
				t.Fatalf("handler must report errors as results, got %v", err)
			}
			AssertErrorResult(t, result, "expected an error result")
			if !strings.Contains(resultText(result), tt.wantText) {
				t.Errorf("result %q does not mention %q", resultText(result), tt.wantText)
			}
		})
	}
}

func TestInvalidAreaGuidance(t *testing.T) {
	result := toolError(core.NewInvalidAreaError("bbox is inverted"))
	text := resultText(result)
	if !strings.Contains(text, "guidance") || !strings.Contains(text, "min_lon") {
		t.Errorf("invalid area result should carry guidance, got %s", text)
	}
}

func TestGetVersionTool(t *testing.T) {
	handler := handlerFor(t, NewRegistry(nil, &stubExtractor{}), "get_version")

	result, err := handler(context.Background(), newToolRequest("get_version", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	AssertSuccessResult(t, result, "get_version should succeed")

	var info VersionInfo
	if err := ParseResultJSON(result, &info); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if info.Version == "" || info.GoVersion == "" {
		t.Errorf("incomplete version info: %+v", info)
	}
}

func TestToolMetrics(t *testing.T) {
	monitoring.MCPRequestsTotal.Reset()

	handler := handlerFor(t, NewRegistry(nil, &stubExtractor{err: errors.New("boom")}), "extract_area")
	if _, err := handler(context.Background(), newToolRequest("extract_area", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := testutil.ToFloat64(monitoring.MCPRequestsTotal.WithLabelValues("extract_area", "error")); got != 1 {
		t.Errorf("error results should count as failed requests, got %v", got)
	}
}
