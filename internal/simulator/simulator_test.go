package simulator

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/pkg/geospatial"
)

type sinkFunc func(ctx context.Context, pos *domain.Position) error

func (f sinkFunc) PublishPosition(ctx context.Context, pos *domain.Position) error { return f(ctx, pos) }

func TestParseCoord(t *testing.T) {
	p, err := ParseCoord(" 12.9716, 77.5946 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Lat != 12.9716 || p.Lon != 77.5946 {
		t.Errorf("got %+v", p)
	}

	for _, bad := range []string{"", "12.9", "a,b", "91,0", "0,181"} {
		if _, err := ParseCoord(bad); err == nil {
			t.Errorf("ParseCoord(%q) expected error", bad)
		}
	}
}

func TestWalk_EvenSpacing(t *testing.T) {
	// ~1.11 km along the equator.
	path := domain.GeoLineString{Coordinates: []domain.GeoPoint{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}}}
	points := Walk(path, 100)

	if points[0] != path.Coordinates[0] || points[len(points)-1] != path.Coordinates[1] {
		t.Fatalf("walk must keep the endpoints: %v", points)
	}
	if len(points) != 13 {
		t.Fatalf("expected 13 points, got %d", len(points))
	}
	for i := 1; i < len(points)-1; i++ {
		d := geospatial.Distance(points[i-1], points[i])
		if math.Abs(d-100) > 0.5 {
			t.Errorf("step %d is %.2f m", i, d)
		}
	}
}

func TestWalk_CarriesAcrossVertices(t *testing.T) {
	path := domain.GeoLineString{Coordinates: []domain.GeoPoint{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.0005}, {Lat: 0, Lon: 0.001}, {Lat: 0, Lon: 0.0015},
	}}
	points := Walk(path, 80)
	for i := 1; i < len(points)-1; i++ {
		d := geospatial.Distance(points[i-1], points[i])
		if math.Abs(d-80) > 0.5 {
			t.Errorf("step %d is %.2f m", i, d)
		}
	}
}

func TestWalk_NonPositiveStepReturnsVertices(t *testing.T) {
	path := domain.GeoLineString{Coordinates: []domain.GeoPoint{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}}
	if got := Walk(path, 0); len(got) != 2 {
		t.Errorf("expected vertices, got %v", got)
	}
	if got := Walk(domain.GeoLineString{}, 10); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestRide_SendsEveryPoint(t *testing.T) {
	path := domain.GeoLineString{Coordinates: []domain.GeoPoint{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.001}}}
	var mu sync.Mutex
	var got []*domain.Position
	sink := sinkFunc(func(_ context.Context, pos *domain.Position) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, pos)
		return nil
	})

	sent, err := Ride(context.Background(), sink, path, Config{DeviceID: "sim", SpeedKmh: 36000, Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if sent != len(got) || sent < 2 {
		t.Fatalf("sent %d, recorded %d", sent, len(got))
	}
	if got[0].DeviceID != "sim" || got[0].Speed == nil || math.Abs(*got[0].Speed-10000) > 1e-6 {
		t.Errorf("unexpected first sample %+v", got[0])
	}
	if got[len(got)-1].Location != path.Coordinates[1] {
		t.Errorf("ride must end at the destination, got %+v", got[len(got)-1].Location)
	}
}

func TestRide_StopsOnPublishError(t *testing.T) {
	boom := errors.New("broker down")
	path := domain.GeoLineString{Coordinates: []domain.GeoPoint{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}}}
	sent, err := Ride(context.Background(), sinkFunc(func(context.Context, *domain.Position) error { return boom }),
		path, Config{DeviceID: "sim", SpeedKmh: 36, Interval: time.Millisecond})
	if !errors.Is(err, boom) || sent != 0 {
		t.Errorf("sent=%d err=%v", sent, err)
	}
}

func TestRide_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	path := domain.GeoLineString{Coordinates: []domain.GeoPoint{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}}}
	sink := sinkFunc(func(context.Context, *domain.Position) error {
		cancel()
		return nil
	})
	sent, err := Ride(ctx, sink, path, Config{DeviceID: "sim", SpeedKmh: 36, Interval: time.Hour})
	if !errors.Is(err, context.Canceled) || sent != 1 {
		t.Errorf("sent=%d err=%v", sent, err)
	}
}
