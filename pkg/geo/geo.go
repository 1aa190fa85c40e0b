// Package geo resolves request areas and measures geometries.
package geo

import (
	"fmt"
	"math"

	"github.com/NERVsystems/osmextract/pkg/core"
)

// BoundingBox is an axis-aligned box in WGS84 degrees
type BoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// NewBoundingBox creates an empty bounding box ready to be extended
func NewBoundingBox() *BoundingBox {
	return &BoundingBox{
		MinLon: math.Inf(1),
		MinLat: math.Inf(1),
		MaxLon: math.Inf(-1),
		MaxLat: math.Inf(-1),
	}
}

// ExtendWithPoint grows the box to include the given point
func (b *BoundingBox) ExtendWithPoint(lon, lat float64) {
	b.MinLon = math.Min(b.MinLon, lon)
	b.MinLat = math.Min(b.MinLat, lat)
	b.MaxLon = math.Max(b.MaxLon, lon)
	b.MaxLat = math.Max(b.MaxLat, lat)
}

// Validate checks that the box is finite, inside WGS84 ranges and has
// strictly ordered corners. Boxes crossing the antimeridian are rejected.
func (b BoundingBox) Validate() error {
	if err := core.ValidatePosition(b.MinLon, b.MinLat); err != nil {
		return &core.InvalidAreaError{Reason: "south-west corner out of range", Err: err}
	}
	if err := core.ValidatePosition(b.MaxLon, b.MaxLat); err != nil {
		return &core.InvalidAreaError{Reason: "north-east corner out of range", Err: err}
	}
	if b.MinLon >= b.MaxLon {
		return core.NewInvalidAreaError("min_lon %g must be less than max_lon %g", b.MinLon, b.MaxLon)
	}
	if b.MinLat >= b.MaxLat {
		return core.NewInvalidAreaError("min_lat %g must be less than max_lat %g", b.MinLat, b.MaxLat)
	}
	return nil
}

// String formats the box as minLon,minLat,maxLon,maxLat
func (b BoundingBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}
