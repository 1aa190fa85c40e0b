package core

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolFactory builds tool definitions with the standard parameter set
type ToolFactory struct {
	layers []string
}

// NewToolFactory creates a factory whose area tools accept the given layer names
func NewToolFactory(layers ...string) *ToolFactory {
	return &ToolFactory{layers: layers}
}

// CreateBasicTool creates a tool that takes no parameters
func (f *ToolFactory) CreateBasicTool(name, description string) mcp.Tool {
	return mcp.NewTool(name, mcp.WithDescription(description))
}

// CreateAreaTool creates a tool taking a bbox or polygon area plus a layer list
func (f *ToolFactory) CreateAreaTool(name, description string) mcp.Tool {
	coord := func(desc string) map[string]any {
		return map[string]any{"type": "number", "description": desc}
	}

	layerItems := map[string]any{"type": "string"}
	layersDesc := "Layers to extract. Defaults to all layers"
	if len(f.layers) > 0 {
		layerItems["enum"] = f.layers
		layersDesc += ": " + strings.Join(f.layers, ", ")
	}

	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithObject("bbox",
			mcp.Description("Bounding box in WGS84 degrees with min_lon < max_lon and min_lat < max_lat. Example: {\"min_lon\": 44.50, \"min_lat\": 40.17, \"max_lon\": 44.52, \"max_lat\": 40.19}"),
			mcp.Properties(map[string]any{
				"min_lon": coord("Western edge longitude (-180 to 180)"),
				"min_lat": coord("Southern edge latitude (-90 to 90)"),
				"max_lon": coord("Eastern edge longitude (-180 to 180)"),
				"max_lat": coord("Northern edge latitude (-90 to 90)"),
			}),
		),
		mcp.WithString("polygon",
			mcp.Description("GeoJSON Polygon as a string. Its exterior ring bounds the extraction and takes precedence over bbox"),
		),
		mcp.WithArray("layers",
			mcp.Description(layersDesc),
			mcp.Items(layerItems),
		),
	)
}
