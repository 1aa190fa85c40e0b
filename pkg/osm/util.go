package osm

import "time"

const (
	// OverpassBaseURL is the public Overpass interpreter endpoint
	OverpassBaseURL = "https://overpass-api.de/api/interpreter"

	// DefaultUserAgent identifies the extractor to Overpass operators
	DefaultUserAgent = "osmextract/0.1.0"

	// DefaultTimeout bounds one Overpass call including body transfer
	DefaultTimeout = 30 * time.Second

	// Default rate limit. The burst lets one extraction's fan-out
	// start without queueing behind itself.
	DefaultRPS   = 2.0
	DefaultBurst = 4
)
