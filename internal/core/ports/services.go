package ports

import (
	"context"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

// Geocoder resolves free text to a destination.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*domain.Destination, error)
}

// Router computes a driving route between two points.
type Router interface {
	Route(ctx context.Context, from, to domain.GeoPoint) (*domain.Route, error)
}

// Speaker drives the speech output device. A new utterance replaces any in-flight one.
type Speaker interface {
	Speak(ctx context.Context, u domain.Utterance) error
	Cancel(ctx context.Context) error
}

// AlarmPlayer drives the looping alarm audio device.
type AlarmPlayer interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Rewind(ctx context.Context) error
}

// PositionFeed delivers device position samples until ctx is cancelled.
type PositionFeed interface {
	Subscribe(ctx context.Context, handler func(ctx context.Context, pos *domain.Position) error) error
}

// EventPublisher publishes navigator events to a message broker.
type EventPublisher interface {
	PublishStatus(ctx context.Context, status *domain.Status) error
	PublishNotification(ctx context.Context, n *domain.Notification) error
}

// AlertPublisher fans alerts out to downstream consumers.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, n *domain.Notification) error
}

// TripArchive stores the geometry of a finished trip and returns its object key.
type TripArchive interface {
	Archive(ctx context.Context, trip *domain.Trip, route *domain.Route, track []domain.GeoPoint) (string, error)
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
