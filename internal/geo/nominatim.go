package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Nominatim queries an OpenStreetMap Nominatim /search endpoint.
type Nominatim struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

func NewNominatim(baseURL, userAgent string, timeout time.Duration) *Nominatim {
	return &Nominatim{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		Client:    &http.Client{Timeout: timeout},
	}
}

type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Type        string  `json:"type"`
	AddressType string  `json:"addresstype"`
	Importance  float64 `json:"importance"`
	DisplayName string  `json:"display_name"`
}

func (n *Nominatim) Lookup(ctx context.Context, query string) (Match, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return Match{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	req.Header.Set("User-Agent", n.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		// transport failures are treated like an unhealthy server
		return Match{}, fmt.Errorf("%w: %v", ErrServer, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Match{}, fmt.Errorf("%w: read body: %v", ErrServer, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Match{}, ErrRateLimited
	case resp.StatusCode >= 500:
		return Match{}, fmt.Errorf("%w: http %d", ErrServer, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Match{}, fmt.Errorf("%w: http %d", ErrMalformed, resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return Match{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(places) == 0 {
		return Match{}, ErrNotFound
	}
	p := places[0]
	lat, err1 := strconv.ParseFloat(p.Lat, 64)
	lon, err2 := strconv.ParseFloat(p.Lon, 64)
	if err1 != nil || err2 != nil {
		return Match{}, fmt.Errorf("%w: bad coordinates %q,%q", ErrMalformed, p.Lat, p.Lon)
	}
	placeType := p.AddressType
	if placeType == "" {
		placeType = p.Type
	}
	return Match{
		Latitude:    lat,
		Longitude:   lon,
		PlaceType:   placeType,
		Importance:  p.Importance,
		DisplayName: p.DisplayName,
	}, nil
}
