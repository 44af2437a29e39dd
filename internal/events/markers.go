package events

// Marker is a GeoJSON point feature with simplestyle properties.
type Marker struct {
	Type       string           `json:"type"`
	Geometry   Geometry         `json:"geometry"`
	Properties MarkerProperties `json:"properties"`
}

type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type MarkerProperties struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	MarkerSize   string `json:"marker-size"`
	MarkerColor  string `json:"marker-color"`
	MarkerSymbol string `json:"marker-symbol"`
}

// Markers renders events as red police pins. Coordinates are [lon, lat].
func Markers(evs []Event) []Marker {
	out := make([]Marker, 0, len(evs))
	for _, e := range evs {
		out = append(out, Marker{
			Type:     "Feature",
			Geometry: Geometry{Type: "Point", Coordinates: [2]float64{e.Longitude, e.Latitude}},
			Properties: MarkerProperties{
				Title:        e.Title,
				Description:  e.Description,
				MarkerSize:   "large",
				MarkerColor:  "#FF0000",
				MarkerSymbol: "police",
			},
		})
	}
	return out
}
