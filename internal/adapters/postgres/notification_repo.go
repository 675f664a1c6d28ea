package postgres

import (
	"context"
	"database/sql"

	"go.opentelemetry.io/otel"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/pkg/telemetry"
)

// NotificationRepo implements ports.NotificationRepository.
type NotificationRepo struct {
	db *DB
}

func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Insert stores n and fills its ID.
func (r *NotificationRepo) Insert(ctx context.Context, n *domain.Notification) error {
	ctx, span := otel.Tracer("destialarm/postgres").Start(ctx, telemetry.SpanJournalInsert)
	defer span.End()

	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO notifications (destination_id, kind, stage, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, nilIfEmpty(n.DestinationID), string(n.Kind), nilIfEmpty(string(n.Stage)), n.Message, n.CreatedAt).Scan(&n.ID)
}

func (r *NotificationRepo) List(ctx context.Context, offset, limit int) ([]domain.Notification, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM notifications`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, destination_id, kind, stage, message, created_at
		FROM notifications
		ORDER BY created_at DESC, id DESC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.Notification, 0, limit)
	for rows.Next() {
		var n domain.Notification
		var destID, stage sql.NullString
		var kind string
		if err := rows.Scan(&n.ID, &destID, &kind, &stage, &n.Message, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		n.DestinationID = destID.String
		n.Kind = domain.NotificationKind(kind)
		n.Stage = domain.Stage(stage.String)
		items = append(items, n)
	}
	return items, total, rows.Err()
}
