package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

const (
	// EarthRadius is the WGS84 semi-major axis used by EPSG:3857, in meters
	EarthRadius = 6378137.0

	// MaxMercatorLatitude is the latitude at which EPSG:3857 becomes square
	MaxMercatorLatitude = 85.05112878
)

// ToWebMercator projects a [lon, lat] coordinate into EPSG:3857 meters.
// Latitude is clamped to the projection's valid range.
func ToWebMercator(lon, lat float64) (x, y float64) {
	lat = math.Max(-MaxMercatorLatitude, math.Min(MaxMercatorLatitude, lat))
	x = EarthRadius * lon * math.Pi / 180
	y = EarthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

func projectFlat(coords []geom.Coord) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		x, y := ToWebMercator(c[0], c[1])
		flat = append(flat, x, y)
	}
	return flat
}

// ProjectLineString builds a planar line string from [lon, lat] coordinates
func ProjectLineString(coords []geom.Coord) *geom.LineString {
	return geom.NewLineStringFlat(geom.XY, projectFlat(coords))
}

// ProjectPolygon builds a planar polygon from a closed [lon, lat] ring
func ProjectPolygon(ring []geom.Coord) *geom.Polygon {
	flat := projectFlat(ring)
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

// LengthMeters is the planar length of the projected line
func LengthMeters(coords []geom.Coord) float64 {
	if len(coords) < 2 {
		return 0
	}
	return ProjectLineString(coords).Length()
}

// AreaSquareMeters is the planar shoelace area of the projected ring
func AreaSquareMeters(ring []geom.Coord) float64 {
	if len(ring) < 4 {
		return 0
	}
	return math.Abs(ProjectPolygon(ring).Area())
}
