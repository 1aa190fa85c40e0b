// Package queries builds Overpass QL queries for the extraction layers.
package queries

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NERVsystems/osmextract/pkg/geo"
)

// TagFilter is one tag condition on an element statement.
// No values tests presence; several values become an anchored regex.
type TagFilter struct {
	Key     string
	Values  []string
	Exclude bool
}

// Tag creates a TagFilter for a key with optional values
func Tag(key string, values ...string) TagFilter {
	return TagFilter{Key: key, Values: values}
}

// OverpassBuilder provides a fluent interface for building Overpass queries.
// Statements are emitted in insertion order, so identical calls always
// produce byte-identical queries.
type OverpassBuilder struct {
	timeout    int
	output     string
	bbox       *geo.BoundingBox
	statements []string
}

// NewOverpassBuilder creates a builder for a JSON query with a 25 second
// server-side timeout and `out geom` output.
func NewOverpassBuilder() *OverpassBuilder {
	return &OverpassBuilder{
		timeout: 25,
		output:  "geom",
	}
}

// WithTimeout sets the server-side query timeout in seconds
func (b *OverpassBuilder) WithTimeout(seconds int) *OverpassBuilder {
	b.timeout = seconds
	return b
}

// WithBoundingBox sets the area applied to statements added afterwards
func (b *OverpassBuilder) WithBoundingBox(bbox geo.BoundingBox) *OverpassBuilder {
	b.bbox = &bbox
	return b
}

// WithNode adds a node statement
func (b *OverpassBuilder) WithNode(tags ...TagFilter) *OverpassBuilder {
	b.statements = append(b.statements, b.statement("node", tags))
	return b
}

// WithWay adds a way statement
func (b *OverpassBuilder) WithWay(tags ...TagFilter) *OverpassBuilder {
	b.statements = append(b.statements, b.statement("way", tags))
	return b
}

// Build returns the complete query string
func (b *OverpassBuilder) Build() string {
	var query strings.Builder
	fmt.Fprintf(&query, "[out:json][timeout:%d];(", b.timeout)
	for _, s := range b.statements {
		query.WriteString(s)
	}
	fmt.Fprintf(&query, ");out %s;", b.output)
	return query.String()
}

func (b *OverpassBuilder) statement(elementType string, tags []TagFilter) string {
	var s strings.Builder
	s.WriteString(elementType)
	for _, tag := range tags {
		s.WriteString(buildTagFilter(tag))
	}
	if b.bbox != nil {
		s.WriteString(FormatBBox(*b.bbox))
	}
	s.WriteString(";")
	return s.String()
}

func buildTagFilter(filter TagFilter) string {
	key := strconv.Quote(filter.Key)

	if len(filter.Values) == 0 || (len(filter.Values) == 1 && filter.Values[0] == "*") {
		return fmt.Sprintf("[%s]", key)
	}

	if len(filter.Values) == 1 {
		return fmt.Sprintf("[%s=%s]", key, strconv.Quote(filter.Values[0]))
	}

	pattern := strconv.Quote("^(" + strings.Join(filter.Values, "|") + ")$")
	return fmt.Sprintf("[%s~%s]", key, pattern)
}

// FormatBBox renders a box in Overpass (south,west,north,east) order using
// the shortest decimal form that round-trips each value.
func FormatBBox(b geo.BoundingBox) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return "(" + f(b.MinLat) + "," + f(b.MinLon) + "," + f(b.MaxLat) + "," + f(b.MaxLon) + ")"
}
