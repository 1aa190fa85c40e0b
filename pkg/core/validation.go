package core

import (
	"fmt"
	"math"
)

// WGS84 ranges accepted for request positions, in decimal degrees
const (
	MinLongitude = -180.0
	MaxLongitude = 180.0
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
)

// ValidatePosition checks a position in GeoJSON order, longitude first.
// NaN, infinities and out-of-range values are rejected.
func ValidatePosition(lon, lat float64) error {
	if !within(lon, MinLongitude, MaxLongitude) {
		return NewError(ErrInvalidLongitude,
			fmt.Sprintf("longitude %g is outside [%g, %g]", lon, MinLongitude, MaxLongitude)).
			WithGuidance("Positions are [lon, lat] in decimal degrees")
	}
	if !within(lat, MinLatitude, MaxLatitude) {
		return NewError(ErrInvalidLatitude,
			fmt.Sprintf("latitude %g is outside [%g, %g]", lat, MinLatitude, MaxLatitude)).
			WithGuidance("Positions are [lon, lat] in decimal degrees; check for swapped axes")
	}
	return nil
}

func within(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
