package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

// TripRepo implements ports.TripRepository.
type TripRepo struct {
	db *DB
}

func NewTripRepo(db *DB) *TripRepo {
	return &TripRepo{db: db}
}

func (r *TripRepo) Create(ctx context.Context, t *domain.Trip) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trips (destination_id, query, name, lat, lon, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (destination_id) DO NOTHING
	`, t.DestinationID, t.Query, nilIfEmpty(t.Name), t.Destination.Lat, t.Destination.Lon, t.StartedAt)
	return err
}

func (r *TripRepo) MarkArrived(ctx context.Context, destinationID string, at time.Time, distanceKm *float64, archiveKey string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE trips
		SET arrived_at = $2, distance_km = $3, archive_key = $4
		WHERE destination_id = $1
	`, destinationID, at, distanceKm, nilIfEmpty(archiveKey))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trip %s: %w", destinationID, domain.ErrNoDestination)
	}
	return nil
}

func (r *TripRepo) ListRecent(ctx context.Context, limit int) ([]domain.Trip, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT destination_id, query, name, lat, lon, started_at, arrived_at, distance_km, archive_key
		FROM trips
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		var t domain.Trip
		var name, archiveKey sql.NullString
		if err := rows.Scan(
			&t.DestinationID, &t.Query, &name, &t.Destination.Lat, &t.Destination.Lon,
			&t.StartedAt, &t.ArrivedAt, &t.DistanceKm, &archiveKey,
		); err != nil {
			return nil, err
		}
		t.Name = name.String
		t.ArchiveKey = archiveKey.String
		trips = append(trips, t)
	}
	return trips, rows.Err()
}
