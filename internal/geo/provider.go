package geo

import (
	"context"
	"errors"
)

// Provider failure classes. Rate limiting and server errors are transient;
// the rest end the candidate on the first attempt.
var (
	ErrRateLimited = errors.New("geocoder rate limited")
	ErrServer      = errors.New("geocoder server error")
	ErrNotFound    = errors.New("no geocoding match")
	ErrMalformed   = errors.New("malformed geocoder response")
)

// Match is the provider's best hit for a query.
type Match struct {
	Latitude    float64
	Longitude   float64
	PlaceType   string
	Importance  float64
	DisplayName string
}

// Provider looks up a single free-text query.
type Provider interface {
	Lookup(ctx context.Context, query string) (Match, error)
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrServer):
		return "server_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}
