package tools

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmextract/pkg/core"
)

// Common error guidance messages
const (
	GuidanceGeneral = "Please try again later or modify your request parameters."
)

// ErrorResponse returns a plain tool error result
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// ErrorWithGuidance returns a tool error result carrying recovery guidance
func ErrorWithGuidance(message, guidance string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Error: %s\n\nGuidance: %s", message, guidance))
}

// toolError converts a pipeline error into a tool result. Structured
// errors keep their code and guidance; anything else is reported as is.
func toolError(err error) *mcp.CallToolResult {
	var areaErr *core.InvalidAreaError
	if errors.As(err, &areaErr) {
		return areaErr.MCPError().ToMCPResult()
	}

	var mcpErr *core.MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr.ToMCPResult()
	}

	return ErrorWithGuidance(err.Error(), GuidanceGeneral)
}

// GetToolUsageExample returns an example argument object for a tool,
// shown when parameter parsing fails
func GetToolUsageExample(toolName string) string {
	examples := map[string]string{
		"extract_area": `{
  "bbox": {"min_lon": 44.50, "min_lat": 40.17, "max_lon": 44.52, "max_lat": 40.19},
  "layers": ["roads", "buildings", "pois"]
}`,
		"get_version": `{}`,
	}

	if example, ok := examples[toolName]; ok {
		return example
	}
	return `{}`
}
