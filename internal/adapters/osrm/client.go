package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/pkg/geospatial"
	"github.com/samirrijal/destialarm/internal/pkg/metrics"
	"github.com/samirrijal/destialarm/internal/pkg/telemetry"
)

const service = "osrm"

// Config configures the OSRM client.
type Config struct {
	BaseURL string
	Profile string
	Timeout time.Duration
}

// Client implements ports.Router against the OSRM route service.
type Client struct {
	cfg  Config
	http *http.Client
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64         `json:"distance"` // meters
		Geometry json.RawMessage `json:"geometry"`
	} `json:"routes"`
}

// New creates a client. Zero values fall back to the public demo server and driving profile.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://router.project-osrm.org"
	}
	if cfg.Profile == "" {
		cfg.Profile = "driving"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Route fetches the full-overview route from one point to another.
func (c *Client) Route(ctx context.Context, from, to domain.GeoPoint) (*domain.Route, error) {
	ctx, span := otel.Tracer("destialarm/osrm").Start(ctx, telemetry.SpanRoute)
	defer span.End()
	span.SetAttributes(
		attribute.Float64("route.from.lat", from.Lat),
		attribute.Float64("route.from.lon", from.Lon),
		attribute.Float64("route.to.lat", to.Lat),
		attribute.Float64("route.to.lon", to.Lon),
	)

	start := time.Now()
	route, kind, err := c.fetch(ctx, from, to)
	metrics.UpstreamDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues(service, kind).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Float64("route.distance_km", route.DistanceKm))
	return route, nil
}

func (c *Client) fetch(ctx context.Context, from, to domain.GeoPoint) (*domain.Route, string, error) {
	u := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		c.cfg.BaseURL, c.cfg.Profile, from.Lon, from.Lat, to.Lon, to.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "request", fmt.Errorf("build route request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "transport", fmt.Errorf("route: %w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	var parsed routeResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)

	// OSRM answers 400 with code NoRoute when the points cannot be connected.
	if parsed.Code == "NoRoute" || (decodeErr == nil && resp.StatusCode == http.StatusOK && len(parsed.Routes) == 0) {
		return nil, "not_found", fmt.Errorf("route: %w", domain.ErrRouteNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "status", fmt.Errorf("route: %w: osrm returned %d", domain.ErrNetwork, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, "decode", fmt.Errorf("route: %w: decode: %v", domain.ErrNetwork, decodeErr)
	}

	best := parsed.Routes[0]
	g, err := geojson.UnmarshalGeometry(best.Geometry)
	if err != nil {
		return nil, "decode", fmt.Errorf("route: %w: geometry: %v", domain.ErrNetwork, err)
	}
	ls, ok := g.Geometry().(orb.LineString)
	if !ok {
		return nil, "decode", fmt.Errorf("route: %w: unexpected geometry %s", domain.ErrNetwork, g.Type)
	}

	return &domain.Route{
		Path:       geospatial.FromLineString(ls),
		DistanceKm: best.Distance / 1000,
		From:       from,
		ComputedAt: time.Now().UTC(),
	}, "", nil
}
