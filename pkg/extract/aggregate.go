package extract

import (
	"fmt"
	"log/slog"

	"github.com/NERVsystems/osmextract/pkg/classify"
	"github.com/NERVsystems/osmextract/pkg/geo"
	"github.com/NERVsystems/osmextract/pkg/osm"
	"github.com/NERVsystems/osmextract/pkg/osm/queries"
)

// CRS is the only coordinate reference system features are emitted in
const CRS = "EPSG:4326"

// Summary holds one metric per requested layer. Unrequested layers are
// omitted rather than zeroed.
type Summary struct {
	RoadsKm     *float64       `json:"roads_km,omitempty"`
	BuildingsN  *int           `json:"buildings_n,omitempty"`
	AmenitiesN  *int           `json:"amenities_n,omitempty"`
	POINByClass map[string]int `json:"poi_n_by_class,omitempty"`
}

// Layers holds the extracted layers; POIs are split by category
type Layers struct {
	Roads     *Layer            `json:"roads,omitempty"`
	Buildings *Layer            `json:"buildings,omitempty"`
	Amenities *Layer            `json:"amenities,omitempty"`
	POIs      map[string]*Layer `json:"pois,omitempty"`
}

// Result is the extraction envelope returned for every resolvable area
type Result struct {
	BBox        geo.BoundingBox `json:"bbox"`
	CRS         string          `json:"crs"`
	Summary     Summary         `json:"summary"`
	Layers      Layers          `json:"layers"`
	Diagnostics []string        `json:"diagnostics,omitempty"`
}

// Result statuses reported to metrics and logs
const (
	ResultSuccess  = "success"
	ResultPartial  = "partial"
	ResultDegraded = "degraded"
)

// Status summarizes the result: degraded when every layer failed,
// partial when any layer failed or skipped elements.
func (r *Result) Status() string {
	total, failed, imperfect := 0, 0, 0
	r.EachLayer(func(_ string, l *Layer) {
		total++
		switch l.Status {
		case StatusFailed:
			failed++
			imperfect++
		case StatusPartial:
			imperfect++
		}
	})
	switch {
	case total > 0 && failed == total:
		return ResultDegraded
	case imperfect > 0:
		return ResultPartial
	default:
		return ResultSuccess
	}
}

// EachLayer calls fn for every present layer in output order. POI category
// layers are visited under the name "pois".
func (r *Result) EachLayer(fn func(name string, l *Layer)) {
	if r.Layers.Roads != nil {
		fn(queries.Roads, r.Layers.Roads)
	}
	if r.Layers.Buildings != nil {
		fn(queries.Buildings, r.Layers.Buildings)
	}
	if r.Layers.Amenities != nil {
		fn(queries.Amenities, r.Layers.Amenities)
	}
	for _, l := range r.Layers.POIs {
		fn(queries.POIs, l)
	}
}

// Outcome is the result of one source call and the layers it feeds
type Outcome struct {
	Layers   []string
	Elements []osm.Element
	Err      error
}

// Aggregator assembles processed layers into a Result
type Aggregator struct {
	processor  *Processor
	classifier *classify.Classifier
	logger     *slog.Logger
}

// NewAggregator creates an aggregator. A nil classifier uses the default rules.
func NewAggregator(processor *Processor, classifier *classify.Classifier, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if processor == nil {
		processor = NewProcessor(logger)
	}
	if classifier == nil {
		classifier = classify.New(nil)
	}
	return &Aggregator{processor: processor, classifier: classifier, logger: logger}
}

// Aggregate builds the result for the requested layers. A failed outcome
// degrades only the layers it feeds; when every outcome failed the
// degraded full-shape result is returned instead.
func (a *Aggregator) Aggregate(bbox geo.BoundingBox, requested []string, outcomes []Outcome) *Result {
	byLayer := make(map[string]*Outcome, len(requested))
	failures := 0
	var diagnostics []string
	for i := range outcomes {
		o := &outcomes[i]
		for _, name := range o.Layers {
			byLayer[name] = o
		}
		if o.Err != nil {
			failures++
			diagnostics = append(diagnostics, o.Err.Error())
		}
	}

	if len(outcomes) > 0 && failures == len(outcomes) {
		a.logger.Warn("all layer fetches failed", "bbox", bbox.String(), "failures", failures)
		return a.DegradedResult(bbox, diagnostics...)
	}

	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[name] = true
	}

	result := &Result{BBox: bbox, CRS: CRS}

	if want[queries.Roads] {
		km := 0.0
		if o := byLayer[queries.Roads]; o != nil && o.Err == nil {
			result.Layers.Roads, km = a.processor.Roads(o.Elements)
		} else {
			result.Layers.Roads = failedLayer(reasonFor(o, queries.Roads))
		}
		result.Summary.RoadsKm = &km
	}

	if want[queries.Buildings] {
		if o := byLayer[queries.Buildings]; o != nil && o.Err == nil {
			result.Layers.Buildings = a.processor.Buildings(o.Elements)
		} else {
			result.Layers.Buildings = failedLayer(reasonFor(o, queries.Buildings))
		}
		n := len(result.Layers.Buildings.Features)
		result.Summary.BuildingsN = &n
	}

	if want[queries.Amenities] || want[queries.POIs] {
		a.aggregatePOIs(result, want, byLayer)
	}

	return result
}

// aggregatePOIs processes and classifies the shared amenities/pois fetch
// once and feeds both layers from it.
func (a *Aggregator) aggregatePOIs(result *Result, want map[string]bool, byLayer map[string]*Outcome) {
	o := byLayer[queries.Amenities]
	if o == nil {
		o = byLayer[queries.POIs]
	}

	if o == nil || o.Err != nil {
		if want[queries.Amenities] {
			result.Layers.Amenities = failedLayer(reasonFor(o, queries.Amenities))
			zero := 0
			result.Summary.AmenitiesN = &zero
		}
		if want[queries.POIs] {
			result.Layers.POIs, result.Summary.POINByClass = a.failedPOIs(reasonFor(o, queries.POIs))
		}
		return
	}

	layer := a.processor.POIs(o.Elements)
	groups, counts := a.classifier.Group(layer.Features)

	if want[queries.Amenities] {
		result.Layers.Amenities = layer
		n := len(layer.Features)
		result.Summary.AmenitiesN = &n
	}
	if want[queries.POIs] {
		pois := make(map[string]*Layer, len(groups))
		for category, features := range groups {
			pois[category] = &Layer{Status: layer.Status, Features: features}
		}
		result.Layers.POIs = pois
		result.Summary.POINByClass = counts
	}
}

func (a *Aggregator) failedPOIs(reason string) (map[string]*Layer, map[string]int) {
	categories := a.classifier.Categories()
	layers := make(map[string]*Layer, len(categories))
	counts := make(map[string]int, len(categories))
	for _, category := range categories {
		layers[category] = failedLayer(reason)
		counts[category] = 0
	}
	return layers, counts
}

// DegradedResult is the well-formed all-failed result: every summary key
// zeroed and every layer empty and failed, with the bbox echoed back.
func (a *Aggregator) DegradedResult(bbox geo.BoundingBox, diagnostics ...string) *Result {
	if len(diagnostics) == 0 {
		diagnostics = []string{"all layer fetches failed"}
	}
	reason := diagnostics[0]

	km, buildings, amenities := 0.0, 0, 0
	pois, counts := a.failedPOIs(reason)

	return &Result{
		BBox: bbox,
		CRS:  CRS,
		Summary: Summary{
			RoadsKm:     &km,
			BuildingsN:  &buildings,
			AmenitiesN:  &amenities,
			POINByClass: counts,
		},
		Layers: Layers{
			Roads:     failedLayer(reason),
			Buildings: failedLayer(reason),
			Amenities: failedLayer(reason),
			POIs:      pois,
		},
		Diagnostics: diagnostics,
	}
}

func reasonFor(o *Outcome, layer string) string {
	if o == nil {
		return fmt.Sprintf("no data fetched for %s", layer)
	}
	return o.Err.Error()
}
