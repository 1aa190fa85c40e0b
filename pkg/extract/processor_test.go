package extract

import (
	"math"
	"testing"

	"github.com/twpayne/go-geom"

	"github.com/NERVsystems/osmextract/pkg/geo"
	"github.com/NERVsystems/osmextract/pkg/osm"
)

func way(id int64, tags osm.Tags, coords ...geom.Coord) osm.Element {
	return osm.Element{Type: osm.TypeWay, ID: id, Tags: tags, Geometry: coords}
}

func node(id int64, lon, lat float64, tags osm.Tags) osm.Element {
	return osm.Element{Type: osm.TypeNode, ID: id, Lat: &lat, Lon: &lon, Tags: tags}
}

func TestCloseRing(t *testing.T) {
	tests := []struct {
		name string
		in   []geom.Coord
		want []geom.Coord
	}{
		{
			name: "closed ring is untouched",
			in:   []geom.Coord{{0, 0}, {1, 0}, {1, 1}, {0, 0}},
			want: []geom.Coord{{0, 0}, {1, 0}, {1, 1}, {0, 0}},
		},
		{
			name: "open ring gains one closing point",
			in:   []geom.Coord{{0, 0}, {1, 0}, {1, 1}},
			want: []geom.Coord{{0, 0}, {1, 0}, {1, 1}, {0, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CloseRing(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for i := range got {
				if !geo.SameXY(got[i], tt.want[i]) {
					t.Errorf("point %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}

	open := []geom.Coord{{0, 0}, {1, 0}, {1, 1}}
	CloseRing(open)
	if len(open) != 3 {
		t.Error("CloseRing must not modify its input")
	}
}

func TestRoads(t *testing.T) {
	p := NewProcessor(nil)
	elements := []osm.Element{
		way(1, osm.Tags{"highway": "primary", "name": "Main", "oneway": "yes"}, geom.Coord{44.5, 40.1}, geom.Coord{44.6, 40.2}),
		way(2, osm.Tags{"highway": "residential"}, geom.Coord{44.5, 40.1}),
		way(3, osm.Tags{"building": "yes"}, geom.Coord{44.5, 40.1}, geom.Coord{44.6, 40.2}),
		node(4, 44.5, 40.1, osm.Tags{"highway": "traffic_signals"}),
	}

	layer, km := p.Roads(elements)

	if layer.Status != StatusPartial || layer.Skipped != 1 {
		t.Errorf("status = %s skipped = %d, want partial/1", layer.Status, layer.Skipped)
	}
	if len(layer.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(layer.Features))
	}

	x1, y1 := geo.ToWebMercator(44.5, 40.1)
	x2, y2 := geo.ToWebMercator(44.6, 40.2)
	want := math.Hypot(x2-x1, y2-y1)

	f := layer.Features[0]
	if got := f.Properties["length_m"].(float64); math.Abs(got-want) > 1e-6 {
		t.Errorf("length_m = %f, want %f", got, want)
	}
	if math.Abs(km-want/1000) > 1e-9 {
		t.Errorf("km = %f, want %f", km, want/1000)
	}
	if f.ID != "way/1" || f.Properties["oneway"] != "yes" || f.Properties["name"] != "Main" {
		t.Errorf("unexpected feature: id=%s props=%v", f.ID, f.Properties)
	}
	if _, ok := f.Geometry.(*geom.LineString); !ok {
		t.Errorf("geometry = %T, want *geom.LineString", f.Geometry)
	}
}

func TestRoadsDefaults(t *testing.T) {
	layer, km := NewProcessor(nil).Roads(nil)
	if layer.Status != StatusSuccess || len(layer.Features) != 0 || km != 0 {
		t.Errorf("empty input gave %+v, %f", layer, km)
	}
	if layer.Features == nil {
		t.Error("features must be an empty slice, not nil")
	}
}

func TestBuildings(t *testing.T) {
	p := NewProcessor(nil)
	elements := []osm.Element{
		way(10, osm.Tags{"building": "house", "building:levels": "2"}, geom.Coord{0, 0}, geom.Coord{0.001, 0}, geom.Coord{0.001, 0.001}),
		way(11, osm.Tags{"building": "yes"}, geom.Coord{0, 0}, geom.Coord{0.001, 0}),
		way(12, osm.Tags{"building": "yes", "name": "Hall"}, geom.Coord{0, 0}, geom.Coord{0.001, 0}, geom.Coord{0.001, 0.001}, geom.Coord{0, 0}),
	}

	layer := p.Buildings(elements)
	if len(layer.Features) != 2 || layer.Skipped != 1 || layer.Status != StatusPartial {
		t.Fatalf("features=%d skipped=%d status=%s", len(layer.Features), layer.Skipped, layer.Status)
	}

	for _, f := range layer.Features {
		poly, ok := f.Geometry.(*geom.Polygon)
		if !ok {
			t.Fatalf("geometry = %T, want *geom.Polygon", f.Geometry)
		}
		if n := poly.LinearRing(0).NumCoords(); n != 4 {
			t.Errorf("%s ring has %d coords, want 4", f.ID, n)
		}
		if a := f.Properties["area_m2"].(float64); a <= 0 {
			t.Errorf("%s area = %f, want > 0", f.ID, a)
		}
	}
	if got := layer.Features[0].Properties["levels"]; got != "2" {
		t.Errorf("levels = %v", got)
	}
	if got := layer.Features[1].Properties["name"]; got != "Hall" {
		t.Errorf("source order lost, second feature name = %v", got)
	}
}

func TestPOIs(t *testing.T) {
	p := NewProcessor(nil)
	elements := []osm.Element{
		node(20, 44.51, 40.18, osm.Tags{"amenity": "cafe", "name": "Cafe"}),
		way(21, osm.Tags{"leisure": "park"}, geom.Coord{0, 0}, geom.Coord{2, 0}, geom.Coord{2, 2}, geom.Coord{0, 2}),
		way(22, osm.Tags{"shop": "kiosk"}, geom.Coord{0, 0}, geom.Coord{1, 1}),
		node(23, 44.5, 40.1, osm.Tags{"highway": "crossing"}),
		{Type: osm.TypeNode, ID: 24, Tags: osm.Tags{"amenity": "bench"}},
	}

	layer := p.POIs(elements)
	if len(layer.Features) != 2 {
		t.Fatalf("features = %d, want 2", len(layer.Features))
	}
	if layer.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", layer.Skipped)
	}

	cafe := layer.Features[0].Geometry.(*geom.Point)
	if cafe.X() != 44.51 || cafe.Y() != 40.18 {
		t.Errorf("node position = %v", cafe.Coords())
	}

	park := layer.Features[1].Geometry.(*geom.Point)
	if math.Abs(park.X()-1) > 1e-9 || math.Abs(park.Y()-1) > 1e-9 {
		t.Errorf("centroid = %v, want [1 1]", park.Coords())
	}

	props := layer.Features[0].Properties
	for _, key := range POIPropertyKeys {
		if _, ok := props[key]; !ok {
			t.Errorf("property %q missing", key)
		}
	}
	if props["amenity"] != "cafe" || props["shop"] != "" {
		t.Errorf("unexpected properties: %v", props)
	}
}

func TestCentroidDegenerateRing(t *testing.T) {
	got := Centroid([]geom.Coord{{0, 0}, {1, 1}, {2, 2}, {0, 0}})
	if math.Abs(got[0]-1) > 1e-9 || math.Abs(got[1]-1) > 1e-9 {
		t.Errorf("centroid = %v, want vertex mean [1 1]", got)
	}
}
