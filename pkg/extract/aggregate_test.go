package extract

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/twpayne/go-geom"

	"github.com/NERVsystems/osmextract/pkg/classify"
	"github.com/NERVsystems/osmextract/pkg/core"
	"github.com/NERVsystems/osmextract/pkg/geo"
	"github.com/NERVsystems/osmextract/pkg/osm"
	"github.com/NERVsystems/osmextract/pkg/osm/queries"
)

var testBBox = geo.BoundingBox{MinLon: 44.50, MinLat: 40.17, MaxLon: 44.52, MaxLat: 40.19}

func sampleRoads() []osm.Element {
	return []osm.Element{
		way(1, osm.Tags{"highway": "primary"}, geom.Coord{44.50, 40.17}, geom.Coord{44.51, 40.18}),
	}
}

func sampleBuildings() []osm.Element {
	return []osm.Element{
		way(2, osm.Tags{"building": "yes"}, geom.Coord{44.50, 40.17}, geom.Coord{44.501, 40.17}, geom.Coord{44.501, 40.171}),
	}
}

func samplePOIs() []osm.Element {
	return []osm.Element{
		node(3, 44.51, 40.18, osm.Tags{"shop": "bakery", "amenity": "restaurant"}),
		node(4, 44.51, 40.18, osm.Tags{"amenity": "school"}),
		node(5, 44.51, 40.18, osm.Tags{"amenity": "bench"}),
	}
}

func fetchFailure(layer string) error {
	return &core.LayerFetchError{Layer: layer, Err: core.ServiceError("Overpass", 504, "gateway timeout")}
}

func TestAggregatePartialFailure(t *testing.T) {
	a := NewAggregator(nil, nil, nil)
	outcomes := []Outcome{
		{Layers: []string{queries.Roads}, Err: fetchFailure(queries.Roads)},
		{Layers: []string{queries.Buildings}, Elements: sampleBuildings()},
		{Layers: []string{queries.Amenities, queries.POIs}, Elements: samplePOIs()},
	}

	result := a.Aggregate(testBBox, queries.AllLayers, outcomes)

	if result.Layers.Roads.Status != StatusFailed || len(result.Layers.Roads.Features) != 0 {
		t.Errorf("roads = %+v, want empty failed layer", result.Layers.Roads)
	}
	if result.Layers.Roads.Error == "" {
		t.Error("failed roads layer should carry an error annotation")
	}
	if result.Summary.RoadsKm == nil || *result.Summary.RoadsKm != 0 {
		t.Errorf("roads_km = %v, want 0", result.Summary.RoadsKm)
	}
	if len(result.Layers.Buildings.Features) != 1 || *result.Summary.BuildingsN != 1 {
		t.Errorf("buildings not extracted: %+v", result.Layers.Buildings)
	}
	if len(result.Layers.Amenities.Features) != 3 || *result.Summary.AmenitiesN != 3 {
		t.Errorf("amenities not extracted: %+v", result.Layers.Amenities)
	}
	if len(result.Diagnostics) != 0 {
		t.Errorf("partial failure must not add diagnostics, got %v", result.Diagnostics)
	}
	if got := result.Status(); got != ResultPartial {
		t.Errorf("status = %s, want partial", got)
	}
}

func TestAggregatePOIClassification(t *testing.T) {
	a := NewAggregator(nil, nil, nil)
	result := a.Aggregate(testBBox, []string{queries.Amenities, queries.POIs}, []Outcome{
		{Layers: []string{queries.Amenities, queries.POIs}, Elements: samplePOIs()},
	})

	categories := classify.DefaultRules().Categories()
	if len(result.Layers.POIs) != len(categories) {
		t.Errorf("pois has %d categories, want %d", len(result.Layers.POIs), len(categories))
	}
	for _, c := range categories {
		if _, ok := result.Layers.POIs[c]; !ok {
			t.Errorf("category %q missing from pois", c)
		}
		if _, ok := result.Summary.POINByClass[c]; !ok {
			t.Errorf("category %q missing from poi_n_by_class", c)
		}
	}

	counts := result.Summary.POINByClass
	if counts["Retail/Trade"] != 1 || counts["Education"] != 1 || counts[classify.Other] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
	if counts["Hospitality"] != 0 {
		t.Errorf("shop+restaurant must classify as Retail/Trade, got Hospitality=%d", counts["Hospitality"])
	}

	// amenities carry the same class label as the pois grouping
	for _, f := range result.Layers.Amenities.Features {
		if f.Properties[classify.ClassProperty] == nil {
			t.Errorf("amenity %s has no class", f.ID)
		}
	}
}

func TestAggregateSummaryKeys(t *testing.T) {
	tests := []struct {
		name      string
		requested []string
		outcomes  []Outcome
		wantKeys  []string
		wantLayer []string
	}{
		{
			name:      "roads only",
			requested: []string{queries.Roads},
			outcomes:  []Outcome{{Layers: []string{queries.Roads}, Elements: sampleRoads()}},
			wantKeys:  []string{"roads_km"},
			wantLayer: []string{"roads"},
		},
		{
			name:      "buildings and pois",
			requested: []string{queries.Buildings, queries.POIs},
			outcomes: []Outcome{
				{Layers: []string{queries.Buildings}, Elements: sampleBuildings()},
				{Layers: []string{queries.POIs}, Elements: samplePOIs()},
			},
			wantKeys:  []string{"buildings_n", "poi_n_by_class"},
			wantLayer: []string{"buildings", "pois"},
		},
		{
			name:      "amenities only",
			requested: []string{queries.Amenities},
			outcomes:  []Outcome{{Layers: []string{queries.Amenities}, Elements: samplePOIs()}},
			wantKeys:  []string{"amenities_n"},
			wantLayer: []string{"amenities"},
		},
		{
			name:      "empty buildings still reports zero",
			requested: []string{queries.Buildings},
			outcomes:  []Outcome{{Layers: []string{queries.Buildings}}},
			wantKeys:  []string{"buildings_n"},
			wantLayer: []string{"buildings"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewAggregator(nil, nil, nil).Aggregate(testBBox, tt.requested, tt.outcomes)

			data, err := json.Marshal(result)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var decoded struct {
				CRS     string                     `json:"crs"`
				Summary map[string]json.RawMessage `json:"summary"`
				Layers  map[string]json.RawMessage `json:"layers"`
			}
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			if decoded.CRS != CRS {
				t.Errorf("crs = %q", decoded.CRS)
			}
			assertKeys(t, "summary", decoded.Summary, tt.wantKeys)
			assertKeys(t, "layers", decoded.Layers, tt.wantLayer)
		})
	}
}

func assertKeys(t *testing.T, what string, got map[string]json.RawMessage, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s has %d keys, want %v", what, len(got), want)
	}
	for _, k := range want {
		if _, ok := got[k]; !ok {
			t.Errorf("%s missing key %q", what, k)
		}
	}
}

func TestAggregateAllFailed(t *testing.T) {
	a := NewAggregator(nil, nil, nil)
	result := a.Aggregate(testBBox, []string{queries.Roads}, []Outcome{
		{Layers: []string{queries.Roads}, Err: fetchFailure(queries.Roads)},
	})

	if result.BBox != testBBox {
		t.Errorf("bbox not echoed: %+v", result.BBox)
	}
	if len(result.Diagnostics) != 1 {
		t.Errorf("diagnostics = %v, want one entry", result.Diagnostics)
	}
	if result.Summary.RoadsKm == nil || result.Summary.BuildingsN == nil ||
		result.Summary.AmenitiesN == nil || result.Summary.POINByClass == nil {
		t.Fatalf("degraded summary must carry all four keys: %+v", result.Summary)
	}
	if *result.Summary.RoadsKm != 0 || *result.Summary.BuildingsN != 0 || *result.Summary.AmenitiesN != 0 {
		t.Errorf("degraded summary must be zeroed: %+v", result.Summary)
	}
	for category, n := range result.Summary.POINByClass {
		if n != 0 {
			t.Errorf("poi count for %s = %d, want 0", category, n)
		}
	}

	count := 0
	result.EachLayer(func(name string, l *Layer) {
		count++
		if l.Status != StatusFailed || len(l.Features) != 0 {
			t.Errorf("%s layer = %+v, want empty failed", name, l)
		}
	})
	if want := 3 + len(classify.DefaultRules().Categories()); count != want {
		t.Errorf("visited %d layers, want %d", count, want)
	}
	if got := result.Status(); got != ResultDegraded {
		t.Errorf("status = %s, want degraded", got)
	}
}

func TestDegradedResultDefaultDiagnostic(t *testing.T) {
	result := NewAggregator(nil, nil, nil).DegradedResult(testBBox)
	if len(result.Diagnostics) != 1 || result.Diagnostics[0] == "" {
		t.Errorf("diagnostics = %v", result.Diagnostics)
	}
	if result.CRS != CRS {
		t.Errorf("crs = %q", result.CRS)
	}
}

func TestLayerJSON(t *testing.T) {
	layer := failedLayer("fetch roads: timeout")
	data, err := json.Marshal(layer)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "FeatureCollection" || decoded["status"] != "failed" || decoded["error"] != "fetch roads: timeout" {
		t.Errorf("unexpected layer json: %s", data)
	}
	if features, ok := decoded["features"].([]interface{}); !ok || len(features) != 0 {
		t.Errorf("features = %v, want []", decoded["features"])
	}
	if _, ok := decoded["skipped"]; ok {
		t.Error("skipped should be omitted when zero")
	}
}

func TestLayerFetchErrorCode(t *testing.T) {
	err := fetchFailure(queries.Roads)
	var fetchErr *core.LayerFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatal("expected LayerFetchError")
	}
	if fetchErr.Code() != string(core.ErrServiceTimeout) {
		t.Errorf("code = %s", fetchErr.Code())
	}
}
