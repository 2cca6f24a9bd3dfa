package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fleetdesk/custody-api/internal/models"
)

// ApprovalRepository persists per-approver decision slots.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// CreateSlots inserts one pending approval per configured approver.
func (r *ApprovalRepository) CreateSlots(ctx context.Context, custodyID string, approverIDs []string) error {
	const query = `INSERT INTO custody_approvals (id, custody_id, approver_id, status, created_at)
	VALUES (:id, :custody_id, :approver_id, :status, :created_at)`
	now := time.Now().UTC()
	for _, approverID := range approverIDs {
		slot := models.Approval{
			ID:         uuid.NewString(),
			CustodyID:  custodyID,
			ApproverID: approverID,
			Status:     models.ApprovalStatusPending,
			CreatedAt:  now,
		}
		if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
			return fmt.Errorf("create approval slot: %w", err)
		}
	}
	return nil
}

// ListByCustody returns all approval slots for a transaction.
func (r *ApprovalRepository) ListByCustody(ctx context.Context, custodyID string) ([]models.Approval, error) {
	const query = `SELECT id, custody_id, approver_id, status, decided_at, notes, created_at
	FROM custody_approvals WHERE custody_id = $1 ORDER BY created_at ASC, approver_id ASC`
	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, query, custodyID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return approvals, nil
}

// Decide records an approver's verdict. The status guard makes decided rows
// immutable: a second decision affects zero rows.
func (r *ApprovalRepository) Decide(ctx context.Context, custodyID, approverID string, status models.ApprovalStatus, notes *string) (bool, error) {
	const query = `UPDATE custody_approvals
	SET status = $3, decided_at = $4, notes = $5
	WHERE custody_id = $1 AND approver_id = $2 AND status = $6`
	result, err := r.db.ExecContext(ctx, query,
		custodyID, approverID, status, time.Now().UTC(), notes, models.ApprovalStatusPending)
	if err != nil {
		return false, fmt.Errorf("record approval decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check decision rows: %w", err)
	}
	return rows > 0, nil
}
