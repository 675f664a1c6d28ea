package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/pkg/geospatial"
)

// Sink receives each simulated sample.
type Sink interface {
	PublishPosition(ctx context.Context, pos *domain.Position) error
}

// Config drives one simulated ride.
type Config struct {
	DeviceID string
	SpeedKmh float64
	Interval time.Duration
}

// ParseCoord parses "lat,lon".
func ParseCoord(input string) (domain.GeoPoint, error) {
	parts := strings.Split(input, ",")
	if len(parts) != 2 {
		return domain.GeoPoint{}, fmt.Errorf("invalid coordinate: %s", input)
	}

	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return domain.GeoPoint{}, fmt.Errorf("invalid lat/lon: %s", input)
	}
	p := domain.GeoPoint{Lat: lat, Lon: lon}
	if !p.Valid() {
		return domain.GeoPoint{}, fmt.Errorf("coordinate out of range: %s", input)
	}
	return p, nil
}

// Walk resamples path into points stepMeters apart along the line. The first
// and last vertices are always included.
func Walk(path domain.GeoLineString, stepMeters float64) []domain.GeoPoint {
	if len(path.Coordinates) == 0 {
		return nil
	}
	if stepMeters <= 0 {
		return append([]domain.GeoPoint(nil), path.Coordinates...)
	}

	out := []domain.GeoPoint{path.Coordinates[0]}
	carry := 0.0 // meters walked since the last emitted point
	for i := 1; i < len(path.Coordinates); i++ {
		a, b := path.Coordinates[i-1], path.Coordinates[i]
		seg := geospatial.Distance(a, b)
		if seg == 0 {
			continue
		}
		at := stepMeters - carry
		for at <= seg {
			out = append(out, lerp(a, b, at/seg))
			at += stepMeters
		}
		carry = seg - (at - stepMeters)
	}

	last := path.Coordinates[len(path.Coordinates)-1]
	if out[len(out)-1] != last {
		out = append(out, last)
	}
	return out
}

func lerp(a, b domain.GeoPoint, f float64) domain.GeoPoint {
	return domain.GeoPoint{
		Lat: a.Lat + (b.Lat-a.Lat)*f,
		Lon: a.Lon + (b.Lon-a.Lon)*f,
	}
}

// Ride emits one sample per interval along path at the configured speed until
// the end of the path or ctx is cancelled. It returns the number of samples sent.
func Ride(ctx context.Context, sink Sink, path domain.GeoLineString, cfg Config) (int, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	speed := cfg.SpeedKmh / 3.6
	points := Walk(path, speed*cfg.Interval.Seconds())

	slog.Info("starting ride", "device", cfg.DeviceID, "points", len(points), "speed_kmh", cfg.SpeedKmh)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	sent := 0
	for i, pt := range points {
		pos := &domain.Position{
			DeviceID: cfg.DeviceID,
			Location: pt,
			Speed:    &speed,
			Accuracy: 5,
			Time:     time.Now().UTC(),
		}
		if err := sink.PublishPosition(ctx, pos); err != nil {
			return sent, fmt.Errorf("publish point %d: %w", i+1, err)
		}
		sent++
		slog.Debug("sample sent", "device", cfg.DeviceID, "point", i+1, "lat", pt.Lat, "lon", pt.Lon)

		if i == len(points)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case <-ticker.C:
		}
	}

	slog.Info("ride completed", "device", cfg.DeviceID, "samples", sent)
	return sent, nil
}
