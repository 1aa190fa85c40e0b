package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmextract/pkg/core"
	"github.com/NERVsystems/osmextract/pkg/monitoring"
	"github.com/NERVsystems/osmextract/pkg/osm/queries"
	"github.com/NERVsystems/osmextract/pkg/tracing"
)

// ToolHandler is the mcp-go tool handler signature
type ToolHandler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Registry contains all tool definitions and handlers
type Registry struct {
	logger    *slog.Logger
	factory   *core.ToolFactory
	extractor Extractor
}

// NewRegistry creates a tool registry backed by the given extractor
func NewRegistry(logger *slog.Logger, extractor Extractor) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:    logger,
		factory:   core.NewToolFactory(queries.AllLayers...),
		extractor: extractor,
	}
}

// ToolDefinition is one registered tool
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     ToolHandler
}

// GetToolDefinitions returns every available tool
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "get_version",
			Description: "Get the version and build information of the extraction service",
			Tool:        r.factory.CreateBasicTool("get_version", "Get the version and build information of the extraction service"),
			Handler:     WithParsedInput("get_version", r.logger, handleGetVersion),
		},
		{
			Name: "extract_area",
			Description: "Extract OpenStreetMap roads, buildings, amenities and categorized points of interest for an area as GeoJSON. " +
				"Parameters: bbox (object with min_lon, min_lat, max_lon, max_lat) or polygon (GeoJSON string), layers (array). " +
				"Layers that fail to download come back empty with status \"failed\"",
			Tool: r.factory.CreateAreaTool("extract_area",
				"Extract OpenStreetMap roads, buildings, amenities and categorized points of interest within a bounding box or polygon. "+
					"Returns a summary (road length in km, building and amenity counts, POI counts by class) and GeoJSON layers in EPSG:4326"),
			Handler: WithParsedInput("extract_area", r.logger, extractAreaHandler(r.extractor)),
		},
	}
}

// RegisterTools registers all tools with the MCP server
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, server.ToolHandlerFunc(r.wrapWithTracing(def.Name, def.Handler)))
	}
}

// wrapWithTracing adds a span and request metrics around a tool handler
func (r *Registry) wrapWithTracing(toolName string, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("mcp.tool.%s", toolName),
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		startTime := time.Now()
		result, err := handler(ctx, req)
		duration := time.Since(startTime)

		status := tracing.StatusSuccess
		switch {
		case err != nil:
			status = tracing.StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case result != nil && result.IsError:
			status = tracing.StatusError
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			span.SetStatus(codes.Ok, "")
		}

		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(tracing.MCPToolAttributes(toolName, status, duration.Milliseconds(), resultSize)...)
		monitoring.RecordMCPRequest(toolName, duration, status == tracing.StatusSuccess)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", duration.Milliseconds(),
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}

// GetToolNames returns the names of all tools
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}
