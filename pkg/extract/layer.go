// Package extract turns Overpass elements into measured, classified
// feature layers for a requested area.
package extract

import (
	"encoding/json"

	"github.com/twpayne/go-geom/encoding/geojson"
)

// Status describes how a layer's extraction went
type Status string

// Layer statuses
const (
	// StatusSuccess means every candidate element became a feature
	StatusSuccess Status = "success"
	// StatusPartial means the fetch worked but some elements lacked geometry
	StatusPartial Status = "partial"
	// StatusFailed means the fetch failed and the layer is empty
	StatusFailed Status = "failed"
)

// Layer is an ordered feature collection with its extraction status
type Layer struct {
	Status   Status
	Error    string
	Skipped  int
	Features []*geojson.Feature
}

func newLayer(features []*geojson.Feature, skipped int) *Layer {
	status := StatusSuccess
	if skipped > 0 {
		status = StatusPartial
	}
	if features == nil {
		features = []*geojson.Feature{}
	}
	return &Layer{Status: status, Skipped: skipped, Features: features}
}

// failedLayer is the empty stand-in for a layer whose fetch failed
func failedLayer(reason string) *Layer {
	return &Layer{Status: StatusFailed, Error: reason, Features: []*geojson.Feature{}}
}

type layerJSON struct {
	Type     string             `json:"type"`
	Features []*geojson.Feature `json:"features"`
	Status   Status             `json:"status"`
	Error    string             `json:"error,omitempty"`
	Skipped  int                `json:"skipped,omitempty"`
}

// MarshalJSON encodes the layer as a GeoJSON FeatureCollection carrying
// status, error and skipped as foreign members.
func (l *Layer) MarshalJSON() ([]byte, error) {
	features := l.Features
	if features == nil {
		features = []*geojson.Feature{}
	}
	return json.Marshal(layerJSON{
		Type:     "FeatureCollection",
		Features: features,
		Status:   l.Status,
		Error:    l.Error,
		Skipped:  l.Skipped,
	})
}
