package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/NERVsystems/osmextract/pkg/classify"
	"github.com/NERVsystems/osmextract/pkg/core"
	"github.com/NERVsystems/osmextract/pkg/geo"
	"github.com/NERVsystems/osmextract/pkg/monitoring"
	"github.com/NERVsystems/osmextract/pkg/osm"
	"github.com/NERVsystems/osmextract/pkg/osm/queries"
	"github.com/NERVsystems/osmextract/pkg/tracing"
)

// Fetcher runs one Overpass query. *osm.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, query string) ([]osm.Element, error)
}

// Request is one extraction: an area and the layers wanted from it
type Request struct {
	Area   geo.AreaInput
	Layers []string
}

// Extractor runs the fetch, process, classify and aggregate pipeline
type Extractor struct {
	fetcher    Fetcher
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewExtractor creates an extractor. A nil classifier uses the default rules.
func NewExtractor(fetcher Fetcher, classifier *classify.Classifier, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		fetcher:    fetcher,
		aggregator: NewAggregator(NewProcessor(logger), classifier, logger),
		logger:     logger,
	}
}

// ParseLayers normalizes requested layer names. An empty list selects
// every layer, repeated names collapse and unknown names are rejected.
func ParseLayers(names []string) ([]string, error) {
	if len(names) == 0 {
		return append([]string{}, queries.AllLayers...), nil
	}

	known := make(map[string]bool, len(queries.AllLayers))
	for _, l := range queries.AllLayers {
		known[l] = true
	}

	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if !known[name] {
			return nil, core.NewError(core.ErrInvalidParameter, fmt.Sprintf("unknown layer %q", raw)).
				WithGuidance("Valid layers are: " + strings.Join(queries.AllLayers, ", "))
		}
		seen[name] = true
	}

	// output order is fixed regardless of request order
	layers := make([]string, 0, len(seen))
	for _, l := range queries.AllLayers {
		if seen[l] {
			layers = append(layers, l)
		}
	}
	return layers, nil
}

// Extract resolves the area and builds the result. Only an unresolvable
// area or unknown layer names return an error; failed fetches degrade
// their layers, and when all fail a degraded result is returned.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	bbox, err := geo.Resolve(req.Area)
	if err != nil {
		monitoring.RecordError("extract", string(core.ErrInvalidArea))
		return nil, err
	}

	layers, err := ParseLayers(req.Layers)
	if err != nil {
		monitoring.RecordError("extract", string(core.ErrInvalidParameter))
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "extract",
		trace.WithAttributes(
			attribute.String(tracing.AttrExtractBBox, bbox.String()),
			attribute.StringSlice(tracing.AttrExtractLayers, layers),
		),
	)
	defer span.End()

	logger := e.logger.With("bbox", bbox.String())
	logger.Info("starting extraction", "layers", layers)

	outcomes := e.fetchAll(ctx, bbox, layers)
	result := e.aggregator.Aggregate(bbox, layers, outcomes)

	result.EachLayer(func(name string, l *Layer) {
		monitoring.RecordLayer(name, string(l.Status), len(l.Features), l.Skipped)
		span.AddEvent("layer", trace.WithAttributes(
			tracing.LayerAttributes(name, string(l.Status), len(l.Features), l.Skipped)...))
	})
	status := result.Status()
	monitoring.RecordExtraction(status, time.Since(start))

	span.SetAttributes(attribute.String("extract.status", status))
	if status == ResultDegraded {
		span.SetStatus(codes.Error, "all layer fetches failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	logger.Info("extraction completed",
		"status", status,
		"duration", time.Since(start),
		"diagnostics", len(result.Diagnostics),
	)
	return result, nil
}

// fetchAll runs one call per distinct query concurrently. Failures are
// kept in their own outcome so they never cancel sibling fetches.
func (e *Extractor) fetchAll(ctx context.Context, bbox geo.BoundingBox, layers []string) []Outcome {
	plans := queries.ForLayers(bbox, layers)
	outcomes := make([]Outcome, len(plans))

	// the closures never fail; errors travel in the outcomes
	var g errgroup.Group
	for i, plan := range plans {
		g.Go(func() error {
			outcomes[i] = e.fetch(ctx, plan)
			return nil
		})
	}
	g.Wait()

	return outcomes
}

func (e *Extractor) fetch(ctx context.Context, plan queries.Plan) Outcome {
	name := strings.Join(plan.Layers, "+")
	ctx, span := tracing.StartSpan(ctx, "extract.layer",
		trace.WithAttributes(
			attribute.String(tracing.AttrExtractLayer, name),
			attribute.Int(tracing.AttrExtractQueryBytes, len(plan.Query)),
		),
	)
	defer span.End()

	start := time.Now()
	elements, err := e.fetcher.Fetch(ctx, plan.Query)
	if err != nil {
		fetchErr := &core.LayerFetchError{Layer: name, Err: err}
		span.RecordError(fetchErr)
		span.SetAttributes(tracing.ErrorAttributes(fetchErr)...)
		span.SetStatus(codes.Error, fetchErr.Code())
		monitoring.RecordError("extract", fetchErr.Code())
		e.logger.Warn("layer fetch failed",
			"layer", name,
			"code", fetchErr.Code(),
			"error", err,
			"duration", time.Since(start),
		)
		return Outcome{Layers: plan.Layers, Err: fetchErr}
	}

	span.SetAttributes(attribute.Int("extract.layer.elements", len(elements)))
	span.SetStatus(codes.Ok, "")
	e.logger.Debug("layer fetched", "layer", name, "elements", len(elements), "duration", time.Since(start))
	return Outcome{Layers: plan.Layers, Elements: elements}
}
