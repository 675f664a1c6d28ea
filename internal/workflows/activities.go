package workflows

import (
	"context"
	"fmt"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

// ObjectStore is the subset of the trip archive the activities need.
type ObjectStore interface {
	Archive(ctx context.Context, trip *domain.Trip, route *domain.Route, track []domain.GeoPoint) (string, error)
	Stat(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

// ArchiveActivities holds the activity implementations for the archive workflow.
type ArchiveActivities struct {
	Store ObjectStore
}

// PutTrip uploads the trip and returns its object key.
func (a *ArchiveActivities) PutTrip(ctx context.Context, input TripArchiveInput) (string, error) {
	key, err := a.Store.Archive(ctx, &input.Trip, input.Route, input.Track)
	if err != nil {
		return "", fmt.Errorf("put trip %s: %w", input.Trip.DestinationID, err)
	}
	return key, nil
}

// VerifyTrip checks the object exists and is not empty.
func (a *ArchiveActivities) VerifyTrip(ctx context.Context, key string) error {
	size, err := a.Store.Stat(ctx, key)
	if err != nil {
		return fmt.Errorf("stat %s: %w", key, err)
	}
	if size == 0 {
		return fmt.Errorf("object %s is empty", key)
	}
	return nil
}

// DeleteTrip removes an archived object (saga compensation).
func (a *ArchiveActivities) DeleteTrip(ctx context.Context, key string) error {
	if err := a.Store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
