package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/pkg/metrics"
	"github.com/samirrijal/destialarm/internal/pkg/telemetry"
)

const service = "nominatim"

// Config configures the Nominatim client.
type Config struct {
	BaseURL   string
	UserAgent string
	Language  string
	Timeout   time.Duration
}

// Client implements ports.Geocoder against the Nominatim search API.
type Client struct {
	cfg  Config
	http *http.Client
}

// searchResult is one element of the /search response.
type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// New creates a client. Zero values fall back to the public instance.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "destialarm/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Geocode resolves query to the best matching place. A single request is made.
func (c *Client) Geocode(ctx context.Context, query string) (*domain.Destination, error) {
	ctx, span := otel.Tracer("destialarm/nominatim").Start(ctx, telemetry.SpanGeocode)
	defer span.End()
	span.SetAttributes(attribute.String("geocode.query", query))

	start := time.Now()
	dest, kind, err := c.search(ctx, query)
	metrics.UpstreamDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues(service, kind).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return dest, nil
}

func (c *Client) search(ctx context.Context, query string) (*domain.Destination, string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	if c.cfg.Language != "" {
		params.Set("accept-language", c.cfg.Language)
	}
	u := fmt.Sprintf("%s/search?%s", c.cfg.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "request", fmt.Errorf("build geocode request: %w", err)
	}
	// The public instance rejects requests without an identifying agent.
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "transport", fmt.Errorf("geocode %q: %w: %v", query, domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "status", fmt.Errorf("geocode %q: %w: nominatim returned %d", query, domain.ErrNetwork, resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, "decode", fmt.Errorf("geocode %q: %w: decode: %v", query, domain.ErrNetwork, err)
	}
	if len(results) == 0 {
		return nil, "not_found", fmt.Errorf("geocode %q: %w", query, domain.ErrGeocodeNotFound)
	}

	first := results[0]
	lat, errLat := strconv.ParseFloat(first.Lat, 64)
	lon, errLon := strconv.ParseFloat(first.Lon, 64)
	loc := domain.GeoPoint{Lat: lat, Lon: lon}
	if errLat != nil || errLon != nil || !loc.Valid() {
		return nil, "decode", fmt.Errorf("geocode %q: %w: invalid coordinates %q,%q", query, domain.ErrNetwork, first.Lat, first.Lon)
	}

	name := first.DisplayName
	if name == "" {
		name = first.Name
	}
	return &domain.Destination{Query: query, Name: name, Location: loc}, "", nil
}
