package queries

import (
	"github.com/NERVsystems/osmextract/pkg/geo"
)

// Layer names accepted by the pipeline
const (
	Roads     = "roads"
	Buildings = "buildings"
	Amenities = "amenities"
	POIs      = "pois"
)

// AllLayers is the default layer set, in output order
var AllLayers = []string{Roads, Buildings, Amenities, POIs}

// RoadClasses are the highway values fetched for the roads layer
var RoadClasses = []string{
	"motorway", "trunk", "primary", "secondary", "tertiary", "unclassified",
	"residential", "service", "living_street", "pedestrian", "track", "path",
	"footway", "cycleway", "bridleway", "steps",
}

// POIKeys are the tag keys that make an element an amenity or POI
var POIKeys = []string{"amenity", "shop", "tourism", "leisure", "healthcare", "office", "government"}

// RoadsQuery selects ways whose highway tag is one of RoadClasses
func RoadsQuery(bbox geo.BoundingBox) string {
	return NewOverpassBuilder().
		WithBoundingBox(bbox).
		WithWay(Tag("highway", RoadClasses...)).
		Build()
}

// BuildingsQuery selects ways carrying a building tag
func BuildingsQuery(bbox geo.BoundingBox) string {
	return NewOverpassBuilder().
		WithBoundingBox(bbox).
		WithWay(Tag("building")).
		Build()
}

// AmenitiesQuery selects nodes, then ways, carrying any POI key.
// The POI layer is served by the same query.
func AmenitiesQuery(bbox geo.BoundingBox) string {
	b := NewOverpassBuilder().WithBoundingBox(bbox)
	for _, key := range POIKeys {
		b.WithNode(Tag(key))
	}
	for _, key := range POIKeys {
		b.WithWay(Tag(key))
	}
	return b.Build()
}

// Plan is one distinct query and the layers its response feeds
type Plan struct {
	Layers []string
	Query  string
}

// ForLayers returns one plan per distinct query needed by the requested
// layers, in roads, buildings, amenities/pois order. Amenities and POIs
// share a plan. Unknown names are ignored; callers validate first.
func ForLayers(bbox geo.BoundingBox, layers []string) []Plan {
	want := make(map[string]bool, len(layers))
	for _, l := range layers {
		want[l] = true
	}

	var plans []Plan
	if want[Roads] {
		plans = append(plans, Plan{Layers: []string{Roads}, Query: RoadsQuery(bbox)})
	}
	if want[Buildings] {
		plans = append(plans, Plan{Layers: []string{Buildings}, Query: BuildingsQuery(bbox)})
	}

	var poiLayers []string
	if want[Amenities] {
		poiLayers = append(poiLayers, Amenities)
	}
	if want[POIs] {
		poiLayers = append(poiLayers, POIs)
	}
	if len(poiLayers) > 0 {
		plans = append(plans, Plan{Layers: poiLayers, Query: AmenitiesQuery(bbox)})
	}
	return plans
}
