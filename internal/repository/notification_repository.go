package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/fleetdesk/custody-api/internal/models"
)

// NotificationRepository reads per-user delivery preferences. The workflow
// consults these, it never writes them; preference management belongs to the
// excluded UI layer.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// IsEnabled reports whether the user accepts the event category. A missing
// row means enabled: users opt out, not in.
func (r *NotificationRepository) IsEnabled(ctx context.Context, userID string, event models.EventType) (bool, error) {
	const query = `SELECT enabled FROM notification_preferences WHERE user_id = $1 AND event_type = $2`
	var enabled bool
	err := r.db.GetContext(ctx, &enabled, query, userID, event)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read notification preference: %w", err)
	}
	return enabled, nil
}
