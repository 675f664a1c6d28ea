package nominatim

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

func TestGeocode_FirstResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "MG Road" || q.Get("format") != "json" || q.Get("limit") != "1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("missing user agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"12.9755","lon":"77.6067","name":"MG Road","display_name":"MG Road, Bengaluru"}]`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, UserAgent: "test-agent"})
	dest, err := c.Geocode(context.Background(), "MG Road")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.Location.Lat != 12.9755 || dest.Location.Lon != 77.6067 {
		t.Errorf("unexpected location %+v", dest.Location)
	}
	if dest.Name != "MG Road, Bengaluru" || dest.Query != "MG Road" {
		t.Errorf("unexpected destination %+v", dest)
	}
}

func TestGeocode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"empty result", http.StatusOK, `[]`, domain.ErrGeocodeNotFound},
		{"server error", http.StatusInternalServerError, `oops`, domain.ErrNetwork},
		{"bad json", http.StatusOK, `{`, domain.ErrNetwork},
		{"bad coordinates", http.StatusOK, `[{"lat":"x","lon":"1"}]`, domain.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL}).Geocode(context.Background(), "somewhere")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGeocode_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(Config{BaseURL: url}).Geocode(context.Background(), "somewhere")
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}
