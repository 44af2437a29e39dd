package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNominatimLookup(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		want    Match
	}{
		{
			name:   "addresstype preferred",
			status: http.StatusOK,
			body:   `[{"lat":"41.8837","lon":"-87.6289","type":"administrative","addresstype":"suburb","importance":0.52,"display_name":"Loop, Chicago"}]`,
			want:   Match{Latitude: 41.8837, Longitude: -87.6289, PlaceType: "suburb", Importance: 0.52, DisplayName: "Loop, Chicago"},
		},
		{
			name:   "falls back to type",
			status: http.StatusOK,
			body:   `[{"lat":"1.5","lon":"2.5","type":"house","importance":0.1}]`,
			want:   Match{Latitude: 1.5, Longitude: 2.5, PlaceType: "house", Importance: 0.1},
		},
		{name: "empty", status: http.StatusOK, body: `[]`, wantErr: ErrNotFound},
		{name: "garbage", status: http.StatusOK, body: `<html>`, wantErr: ErrMalformed},
		{name: "bad coords", status: http.StatusOK, body: `[{"lat":"north","lon":"2"}]`, wantErr: ErrMalformed},
		{name: "429", status: http.StatusTooManyRequests, body: ``, wantErr: ErrRateLimited},
		{name: "503", status: http.StatusServiceUnavailable, body: ``, wantErr: ErrServer},
		{name: "403", status: http.StatusForbidden, body: ``, wantErr: ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/search" || r.URL.Query().Get("format") != "jsonv2" || r.URL.Query().Get("q") != "the loop" {
					t.Errorf("unexpected request %s", r.URL)
				}
				if r.Header.Get("User-Agent") != "voice-geo-test" {
					t.Errorf("user agent = %q", r.Header.Get("User-Agent"))
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			n := NewNominatim(srv.URL+"/", "voice-geo-test", time.Second)
			got, err := n.Lookup(context.Background(), "the loop")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNominatimUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewNominatim(url, "ua", time.Second).Lookup(context.Background(), "x")
	if !IsTransient(err) {
		t.Errorf("err = %v, want transient", err)
	}
}

func TestMockProvider(t *testing.T) {
	m := NewMock()
	if got, err := m.Lookup(context.Background(), " Downtown Chicago "); err != nil || got.Importance <= 0.2 {
		t.Errorf("downtown chicago = %+v, %v", got, err)
	}
	if _, err := m.Lookup(context.Background(), "Atlantis"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}
