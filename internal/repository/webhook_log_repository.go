package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fleetdesk/custody-api/internal/models"
)

// WebhookLogRepository persists the append-only webhook delivery log.
type WebhookLogRepository struct {
	db *sqlx.DB
}

// NewWebhookLogRepository constructs the repository.
func NewWebhookLogRepository(db *sqlx.DB) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

// Create appends one delivery attempt.
func (r *WebhookLogRepository) Create(ctx context.Context, entry *models.WebhookLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO custody_webhook_log
	(id, custody_id, webhook_type, event_type, endpoint, payload, response, status_code, success, error_message, retry_count, created_at)
	VALUES (:id, :custody_id, :webhook_type, :event_type, :endpoint, :payload, :response, :status_code, :success, :error_message, :retry_count, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create webhook log entry: %w", err)
	}
	return nil
}

// ListByCustody returns the delivery history for a transaction.
func (r *WebhookLogRepository) ListByCustody(ctx context.Context, custodyID string) ([]models.WebhookLogEntry, error) {
	const query = `SELECT id, custody_id, webhook_type, event_type, endpoint, payload, response,
	       status_code, success, error_message, retry_count, created_at
	FROM custody_webhook_log WHERE custody_id = $1 ORDER BY created_at DESC`
	var entries []models.WebhookLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, custodyID); err != nil {
		return nil, fmt.Errorf("list webhook log: %w", err)
	}
	return entries, nil
}

// ListFailedRetryable returns, per (custody, integration, event) lineage, the
// most recent attempt when that attempt failed, is younger than maxAge, and
// still has retry budget. A lineage whose latest attempt succeeded drops out.
func (r *WebhookLogRepository) ListFailedRetryable(ctx context.Context, maxAge time.Duration, maxRetries int) ([]models.WebhookLogEntry, error) {
	const query = `SELECT id, custody_id, webhook_type, event_type, endpoint, payload, response,
	       status_code, success, error_message, retry_count, created_at
	FROM (
	  SELECT DISTINCT ON (custody_id, webhook_type, event_type)
	         id, custody_id, webhook_type, event_type, endpoint, payload, response,
	         status_code, success, error_message, retry_count, created_at
	  FROM custody_webhook_log
	  ORDER BY custody_id, webhook_type, event_type, created_at DESC
	) latest
	WHERE success = FALSE AND retry_count < $1 AND created_at > $2
	ORDER BY created_at ASC`
	cutoff := time.Now().UTC().Add(-maxAge)
	var entries []models.WebhookLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, maxRetries, cutoff); err != nil {
		return nil, fmt.Errorf("list retryable webhook failures: %w", err)
	}
	return entries, nil
}
