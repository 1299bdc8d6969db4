package routing

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// optimizeWaypoints is prepended to the waypoint list so that the Directions
// API may reorder intermediate stops.
const optimizeWaypoints = "optimize:true"

// Request holds the parameters of one route lookup.
type Request struct {
	// Origin and Destination are free-text addresses or "lat,lng" pairs,
	// forwarded as-is.
	Origin      string
	Destination string

	// Waypoints are intermediate stops in the order the caller gave them.
	Waypoints  []string
	AvoidTolls bool
}

// Values builds the outbound Directions API query for r.
//
// origin, destination, key, language, region and alternatives=true are always
// present. waypoints is set only when r has at least one waypoint, as
// "optimize:true|w1|w2|...". avoid=tolls is set only when AvoidTolls is true.
func (r Request) Values(apiKey, language, region string) url.Values {
	v := url.Values{}
	v.Set("origin", r.Origin)
	v.Set("destination", r.Destination)
	v.Set("key", apiKey)
	v.Set("language", language)
	v.Set("region", region)
	v.Set("alternatives", "true")

	if len(r.Waypoints) > 0 {
		parts := make([]string, 0, len(r.Waypoints)+1)
		parts = append(parts, optimizeWaypoints)
		parts = append(parts, r.Waypoints...)
		v.Set("waypoints", strings.Join(parts, "|"))
	}

	if r.AvoidTolls {
		v.Set("avoid", "tolls")
	}

	return v
}

// ParseWaypoints splits a comma-separated waypoint list. Entries are trimmed
// and empty entries dropped; order is preserved.
func ParseWaypoints(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, w := range strings.Split(raw, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// Document is a Directions API response as received from upstream.
type Document struct {
	Body        []byte
	StatusCode  int
	ContentType string
}

// APIStatus returns the Directions API "status" field ("OK", "ZERO_RESULTS",
// "REQUEST_DENIED", ...), or "" when the body carries none.
func (d *Document) APIStatus() string {
	var probe struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(d.Body, &probe); err != nil {
		return ""
	}
	return probe.Status
}

// Client resolves a route lookup into a Directions API document.
type Client interface {
	Directions(ctx context.Context, req Request) (*Document, error)
}
