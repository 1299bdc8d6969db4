package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoRoutes is returned by Summarize when the document has no routes.
	ErrNoRoutes = errors.New("routing: no routes found")

	// ErrMalformedResponse is returned by Summarize when the document cannot be
	// decoded or its first route has no legs.
	ErrMalformedResponse = errors.New("routing: malformed directions response")
)

// Summary is the reshaped first leg of the first route.
type Summary struct {
	Summary      string  `json:"summary"`
	DistanceKm   float64 `json:"distance"`
	DurationMin  int     `json:"duration"`
	StartAddress string  `json:"start_address"`
	EndAddress   string  `json:"end_address"`
}

// Summarize extracts the first leg of the first route in a Directions API
// body.
//
// Distance is converted from meters to kilometers rounded to one decimal and
// duration from seconds to whole minutes. Both round half away from zero, so
// 12345 m becomes 12.3 km and 1830 s becomes 31 min.
func Summarize(body []byte) (*Summary, error) {
	var resp directionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(resp.Routes) == 0 {
		return nil, ErrNoRoutes
	}

	route := resp.Routes[0]
	if len(route.Legs) == 0 {
		return nil, fmt.Errorf("%w: first route has no legs", ErrMalformedResponse)
	}
	leg := route.Legs[0]

	return &Summary{
		Summary:      route.Summary,
		DistanceKm:   metersToKm(leg.Distance.Value),
		DurationMin:  secondsToMinutes(leg.Duration.Value),
		StartAddress: leg.StartAddress,
		EndAddress:   leg.EndAddress,
	}, nil
}

func metersToKm(m int) float64 {
	return math.Round(float64(m)/100) / 10
}

func secondsToMinutes(s int) int {
	return int(math.Round(float64(s) / 60))
}

// --- JSON types for the Google Directions API ---

type directionsResponse struct {
	Status string            `json:"status"`
	Routes []directionsRoute `json:"routes"`
}

type directionsRoute struct {
	Summary string          `json:"summary"`
	Legs    []directionsLeg `json:"legs"`
}

type directionsLeg struct {
	Distance     directionsValue `json:"distance"`
	Duration     directionsValue `json:"duration"`
	StartAddress string          `json:"start_address"`
	EndAddress   string          `json:"end_address"`
}

type directionsValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}
