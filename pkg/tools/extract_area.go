package tools

import (
	"context"
	"log/slog"

	"github.com/NERVsystems/osmextract/pkg/extract"
	"github.com/NERVsystems/osmextract/pkg/geo"
)

// ExtractAreaInput is the extract_area argument object
type ExtractAreaInput struct {
	BBox    *geo.BoundingBox `json:"bbox,omitempty"`
	Polygon string           `json:"polygon,omitempty"`
	Layers  []string         `json:"layers,omitempty"`
}

// Request converts the arguments into a pipeline request
func (in ExtractAreaInput) Request() extract.Request {
	return extract.Request{
		Area:   geo.AreaInput{BBox: in.BBox, Polygon: in.Polygon},
		Layers: in.Layers,
	}
}

// Extractor is the pipeline the extract_area tool drives
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (*extract.Result, error)
}

func extractAreaHandler(extractor Extractor) func(ctx context.Context, input ExtractAreaInput, logger *slog.Logger) (interface{}, error) {
	return func(ctx context.Context, input ExtractAreaInput, logger *slog.Logger) (interface{}, error) {
		result, err := extractor.Extract(ctx, input.Request())
		if err != nil {
			return nil, err
		}

		logger.Info("area extracted",
			"bbox", result.BBox.String(),
			"status", result.Status(),
		)
		return result, nil
	}
}
