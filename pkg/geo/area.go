package geo

import (
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/NERVsystems/osmextract/pkg/core"
)

// AreaInput is the caller's description of the extraction area.
// Polygon is GeoJSON Polygon text and wins when both fields are set.
type AreaInput struct {
	BBox    *BoundingBox `json:"bbox,omitempty"`
	Polygon string       `json:"polygon,omitempty"`
}

// Resolve normalizes the input into one validated bounding box
func Resolve(in AreaInput) (BoundingBox, error) {
	if strings.TrimSpace(in.Polygon) != "" {
		ring, err := ParsePolygon(in.Polygon)
		if err != nil {
			return BoundingBox{}, err
		}
		return RingBounds(ring)
	}

	if in.BBox == nil {
		return BoundingBox{}, core.NewInvalidAreaError("either bbox or polygon is required")
	}
	if err := in.BBox.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return *in.BBox, nil
}

// ParsePolygon decodes GeoJSON Polygon text and returns its exterior ring
// as [lon, lat] coordinates. Interior rings are ignored.
func ParsePolygon(text string) ([]geom.Coord, error) {
	var g geom.T
	if err := geojson.Unmarshal([]byte(text), &g); err != nil {
		return nil, &core.InvalidAreaError{Reason: "polygon is not valid GeoJSON", Err: err}
	}

	poly, ok := g.(*geom.Polygon)
	if !ok || poly == nil {
		return nil, core.NewInvalidAreaError("polygon must be a GeoJSON Polygon, got %T", g)
	}
	if poly.NumLinearRings() == 0 {
		return nil, core.NewInvalidAreaError("polygon has no exterior ring")
	}

	ring := poly.LinearRing(0).Coords()
	if len(ring) < 4 {
		return nil, core.NewInvalidAreaError("exterior ring needs at least 4 positions, got %d", len(ring))
	}
	if !SameXY(ring[0], ring[len(ring)-1]) {
		return nil, core.NewInvalidAreaError("exterior ring is not closed")
	}
	return ring, nil
}

// RingBounds computes the validated enclosing box of a coordinate ring
func RingBounds(ring []geom.Coord) (BoundingBox, error) {
	if len(ring) == 0 {
		return BoundingBox{}, core.NewInvalidAreaError("ring is empty")
	}
	bbox := NewBoundingBox()
	for i, c := range ring {
		if len(c) < 2 {
			return BoundingBox{}, core.NewInvalidAreaError("position %d has %d ordinates", i, len(c))
		}
		bbox.ExtendWithPoint(c[0], c[1])
	}
	if err := bbox.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return *bbox, nil
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat"
func ParseBBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, core.NewInvalidAreaError("bbox %q must have 4 comma-separated values", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBox{}, &core.InvalidAreaError{Reason: "bbox value " + strconv.Quote(p) + " is not a number", Err: err}
		}
		v[i] = f
	}
	bbox := BoundingBox{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if err := bbox.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return bbox, nil
}

// SameXY reports whether two coordinates share x and y
func SameXY(a, b geom.Coord) bool {
	return a[0] == b[0] && a[1] == b[1]
}
