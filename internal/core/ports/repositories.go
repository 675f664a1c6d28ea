package ports

import (
	"context"
	"time"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

// NotificationRepository journals announcements and alerts.
type NotificationRepository interface {
	Insert(ctx context.Context, n *domain.Notification) error
	// List returns the newest notifications first together with the total count.
	List(ctx context.Context, offset, limit int) ([]domain.Notification, int, error)
}

// TripRepository persists trips.
type TripRepository interface {
	Create(ctx context.Context, trip *domain.Trip) error
	MarkArrived(ctx context.Context, destinationID string, at time.Time, distanceKm *float64, archiveKey string) error
	ListRecent(ctx context.Context, limit int) ([]domain.Trip, error)
}
