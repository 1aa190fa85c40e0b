package extract

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"

	"github.com/NERVsystems/osmextract/pkg/geo"
	"github.com/NERVsystems/osmextract/pkg/osm"
	"github.com/NERVsystems/osmextract/pkg/osm/queries"
)

// POIPropertyKeys are copied onto every POI feature, empty when absent.
// The last four exist so that the matching classification rules can fire.
var POIPropertyKeys = append(append([]string{}, queries.POIKeys...),
	"religion", "railway", "public_transport", "aeroway")

// Processor converts raw elements into features. It is stateless.
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a processor
func NewProcessor(logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger}
}

func featureID(el osm.Element) string {
	return fmt.Sprintf("%s/%d", el.Type, el.ID)
}

// Roads builds LineString features from highway ways and returns the
// layer with its total length in kilometers.
func (p *Processor) Roads(elements []osm.Element) (*Layer, float64) {
	var features []*geojson.Feature
	skipped := 0
	totalMeters := 0.0

	for _, el := range elements {
		if !el.IsWay() || !el.Tags.Has("highway") {
			continue
		}
		if len(el.Geometry) < 2 {
			skipped++
			p.logger.Debug("skipping road without enough points", "id", el.ID, "points", len(el.Geometry))
			continue
		}

		coords := []geom.Coord(el.Geometry)
		length := geo.LengthMeters(coords)
		totalMeters += length

		features = append(features, &geojson.Feature{
			ID:       featureID(el),
			Geometry: geom.NewLineString(geom.XY).MustSetCoords(coords),
			Properties: map[string]interface{}{
				"id":       el.ID,
				"highway":  el.Tags.GetOr("highway", "unknown"),
				"name":     el.Tags.Get("name"),
				"length_m": length,
				"oneway":   el.Tags.GetOr("oneway", "no"),
			},
		})
	}

	return newLayer(features, skipped), totalMeters / 1000
}

// Buildings builds Polygon features from building ways, closing open rings
func (p *Processor) Buildings(elements []osm.Element) *Layer {
	var features []*geojson.Feature
	skipped := 0

	for _, el := range elements {
		if !el.IsWay() || !el.Tags.Has("building") {
			continue
		}
		if len(el.Geometry) < 3 {
			skipped++
			p.logger.Debug("skipping building without enough points", "id", el.ID, "points", len(el.Geometry))
			continue
		}

		ring := CloseRing(el.Geometry)
		area := geo.AreaSquareMeters(ring)

		features = append(features, &geojson.Feature{
			ID:       featureID(el),
			Geometry: geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{ring}),
			Properties: map[string]interface{}{
				"id":       el.ID,
				"building": el.Tags.GetOr("building", "yes"),
				"name":     el.Tags.Get("name"),
				"levels":   el.Tags.Get("building:levels"),
				"area_m2":  area,
			},
		})
	}

	return newLayer(features, skipped)
}

// POIs builds Point features from nodes and from the centroid of ways
// carrying any POI key. Features are not yet classified.
func (p *Processor) POIs(elements []osm.Element) *Layer {
	var features []*geojson.Feature
	skipped := 0

	for _, el := range elements {
		if !hasAnyKey(el.Tags, queries.POIKeys) {
			continue
		}

		var point geom.Coord
		switch {
		case el.IsNode():
			pt, ok := el.Point()
			if !ok {
				skipped++
				continue
			}
			point = pt
		case el.IsWay():
			if len(el.Geometry) < 3 {
				skipped++
				p.logger.Debug("dropping POI way without enough vertices", "id", el.ID, "points", len(el.Geometry))
				continue
			}
			point = Centroid(CloseRing(el.Geometry))
		default:
			continue
		}

		props := make(map[string]interface{}, len(POIPropertyKeys)+2)
		props["id"] = el.ID
		props["name"] = el.Tags.Get("name")
		for _, key := range POIPropertyKeys {
			props[key] = el.Tags.Get(key)
		}

		features = append(features, &geojson.Feature{
			ID:         featureID(el),
			Geometry:   geom.NewPointFlat(geom.XY, []float64{point[0], point[1]}),
			Properties: props,
		})
	}

	return newLayer(features, skipped)
}

func hasAnyKey(tags osm.Tags, keys []string) bool {
	for _, k := range keys {
		if tags.Has(k) {
			return true
		}
	}
	return false
}

// CloseRing returns the ring with its first point appended when the last
// point differs. A closed ring is returned as a copy, unchanged.
func CloseRing(coords []geom.Coord) []geom.Coord {
	ring := make([]geom.Coord, len(coords), len(coords)+1)
	copy(ring, coords)
	if len(ring) > 0 && !geo.SameXY(ring[0], ring[len(ring)-1]) {
		ring = append(ring, ring[0])
	}
	return ring
}

// Centroid returns the area centroid of a closed ring in its own
// coordinates. Rings without area fall back to the vertex mean.
func Centroid(ring []geom.Coord) geom.Coord {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{ring})
	c := xy.PolygonsCentroid(poly)
	if len(c) >= 2 && isFinite(c[0]) && isFinite(c[1]) && poly.Area() != 0 {
		return geom.Coord{c[0], c[1]}
	}

	vertices := ring
	if len(vertices) > 1 && geo.SameXY(vertices[0], vertices[len(vertices)-1]) {
		vertices = vertices[:len(vertices)-1]
	}
	var sx, sy float64
	for _, v := range vertices {
		sx += v[0]
		sy += v[1]
	}
	n := float64(len(vertices))
	return geom.Coord{sx / n, sy / n}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
