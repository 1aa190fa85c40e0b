// Package osm talks to the Overpass API and decodes its elements.
package osm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/twpayne/go-geom"
)

// Element types returned by Overpass
const (
	TypeNode = "node"
	TypeWay  = "way"
)

// Tags is the free-form tag dictionary of an element, read by key only
type Tags map[string]string

// Get returns the tag value or the empty string
func (t Tags) Get(key string) string {
	return t[key]
}

// GetOr returns the tag value, or def when the tag is absent or empty
func (t Tags) GetOr(key, def string) string {
	if v := t[key]; v != "" {
		return v
	}
	return def
}

// Has reports whether the tag is present with a non-empty value
func (t Tags) Has(key string) bool {
	return t[key] != ""
}

// Element is a node or way as returned by an `out geom` query
type Element struct {
	Type     string   `json:"type"`
	ID       int64    `json:"id"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	Tags     Tags     `json:"tags,omitempty"`
	Geometry Geometry `json:"geometry,omitempty"`
}

// IsNode reports whether the element is a node
func (e Element) IsNode() bool { return e.Type == TypeNode }

// IsWay reports whether the element is a way
func (e Element) IsWay() bool { return e.Type == TypeWay }

// Point returns the [lon, lat] position of a node, taken from lat/lon or
// else from the first geometry position.
func (e Element) Point() (geom.Coord, bool) {
	if e.Lat != nil && e.Lon != nil {
		return geom.Coord{*e.Lon, *e.Lat}, true
	}
	if e.IsNode() && len(e.Geometry) > 0 {
		return e.Geometry[0], true
	}
	return nil, false
}

// Geometry is an ordered list of [lon, lat] coordinates
type Geometry []geom.Coord

type latLon struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// UnmarshalJSON accepts both the Overpass `out geom` form,
// [{"lat":..,"lon":..}, ...], and a GeoJSON-style
// {"coordinates": [[lon, lat], ...]} object.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*g = nil
		return nil
	}

	switch data[0] {
	case '[':
		var points []*latLon
		if err := json.Unmarshal(data, &points); err != nil {
			return fmt.Errorf("decode geometry points: %w", err)
		}
		coords := make(Geometry, 0, len(points))
		for i, p := range points {
			if p == nil {
				// Overpass emits null for nodes outside the queried area
				continue
			}
			if p.Lat == nil || p.Lon == nil {
				return fmt.Errorf("geometry point %d lacks lat/lon", i)
			}
			coords = append(coords, geom.Coord{*p.Lon, *p.Lat})
		}
		*g = coords
		return nil

	case '{':
		var obj struct {
			Coordinates [][]float64 `json:"coordinates"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("decode geometry coordinates: %w", err)
		}
		coords := make(Geometry, 0, len(obj.Coordinates))
		for i, c := range obj.Coordinates {
			if len(c) < 2 {
				return fmt.Errorf("geometry position %d has %d ordinates", i, len(c))
			}
			coords = append(coords, geom.Coord{c[0], c[1]})
		}
		*g = coords
		return nil
	}

	return fmt.Errorf("unsupported geometry encoding starting with %q", data[0])
}

// Response is the envelope of an Overpass JSON answer
type Response struct {
	Version   float64           `json:"version"`
	Generator string            `json:"generator"`
	Remark    string            `json:"remark,omitempty"`
	Elements  []json.RawMessage `json:"elements"`
}

// DecodeResponse parses an Overpass JSON body. Elements that cannot be
// decoded are dropped individually rather than failing the whole body.
func DecodeResponse(r io.Reader) ([]Element, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}
	if resp.Elements == nil {
		return nil, fmt.Errorf("overpass response has no elements array")
	}

	logger := slog.Default().With("service", "overpass")
	if resp.Remark != "" {
		logger.Warn("overpass returned a remark", "remark", resp.Remark)
	}

	elements := make([]Element, 0, len(resp.Elements))
	dropped := 0
	for _, raw := range resp.Elements {
		var el Element
		if err := json.Unmarshal(raw, &el); err != nil {
			dropped++
			logger.Debug("dropping undecodable element", "error", err)
			continue
		}
		elements = append(elements, el)
	}
	if dropped > 0 {
		logger.Warn("dropped undecodable elements", "count", dropped, "kept", len(elements))
	}
	return elements, nil
}
