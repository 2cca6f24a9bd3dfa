package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fleetdesk/custody-api/internal/models"
)

// DocumentRepository persists paperwork references on custody transactions.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document reference.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.CustodyDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO custody_documents (id, custody_id, doc_type, reference, issued_at, expires_at, last_notified_at, created_at)
	VALUES (:id, :custody_id, :doc_type, :reference, :issued_at, :expires_at, :last_notified_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create custody document: %w", err)
	}
	return nil
}

// ListByCustody returns documents attached to a transaction.
func (r *DocumentRepository) ListByCustody(ctx context.Context, custodyID string) ([]models.CustodyDocument, error) {
	const query = `SELECT id, custody_id, doc_type, reference, issued_at, expires_at, last_notified_at, created_at
	FROM custody_documents WHERE custody_id = $1 ORDER BY created_at DESC`
	var docs []models.CustodyDocument
	if err := r.db.SelectContext(ctx, &docs, query, custodyID); err != nil {
		return nil, fmt.Errorf("list custody documents: %w", err)
	}
	return docs, nil
}

// MarkNotified stamps the expiry notification marker, at most once per UTC
// day. Returns true only when this call moved the marker.
func (r *DocumentRepository) MarkNotified(ctx context.Context, id string, asOf time.Time) (bool, error) {
	dayStart := asOf.UTC().Truncate(24 * time.Hour)
	const query = `UPDATE custody_documents SET last_notified_at = $2
	WHERE id = $1 AND (last_notified_at IS NULL OR last_notified_at < $3)`
	result, err := r.db.ExecContext(ctx, query, id, asOf.UTC(), dayStart)
	if err != nil {
		return false, fmt.Errorf("mark document notified: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check notification rows: %w", err)
	}
	return rows > 0, nil
}

// ListExpiringWithin returns documents on active custodies whose expiry
// falls inside the horizon, expired documents included.
func (r *DocumentRepository) ListExpiringWithin(ctx context.Context, asOf time.Time, horizon time.Duration) ([]models.CustodyDocument, error) {
	const query = `SELECT d.id, d.custody_id, d.doc_type, d.reference, d.issued_at, d.expires_at, d.last_notified_at, d.created_at
	FROM custody_documents d
	JOIN custody_transactions t ON t.id = d.custody_id
	WHERE t.status = $1 AND d.expires_at IS NOT NULL AND d.expires_at <= $2
	ORDER BY d.expires_at ASC`
	var docs []models.CustodyDocument
	if err := r.db.SelectContext(ctx, &docs, query, models.CustodyStatusActive, asOf.Add(horizon)); err != nil {
		return nil, fmt.Errorf("list expiring documents: %w", err)
	}
	return docs, nil
}
