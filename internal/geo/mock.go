package geo

import (
	"context"
	"strings"
)

// Mock answers from a fixed table keyed by lower-cased query.
type Mock struct {
	Places map[string]Match
}

func NewMock() *Mock {
	return &Mock{Places: map[string]Match{
		"downtown chicago": {Latitude: 41.8837, Longitude: -87.6289, PlaceType: "neighbourhood", Importance: 0.62},
		"chicago":          {Latitude: 41.8756, Longitude: -87.6244, PlaceType: "city", Importance: 0.82},
		"main street":      {Latitude: 45.5202, Longitude: -122.6742, PlaceType: "address", Importance: 0.31},
		"portland":         {Latitude: 45.5202, Longitude: -122.6742, PlaceType: "city", Importance: 0.78},
		"seattle":          {Latitude: 47.6038, Longitude: -122.3301, PlaceType: "city", Importance: 0.79},
		"miami":            {Latitude: 25.7741, Longitude: -80.1937, PlaceType: "city", Importance: 0.77},
	}}
}

func (m *Mock) Lookup(_ context.Context, query string) (Match, error) {
	if hit, ok := m.Places[strings.ToLower(strings.TrimSpace(query))]; ok {
		return hit, nil
	}
	return Match{}, ErrNotFound
}
