package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fleetdesk/custody-api/internal/models"
)

// ErrVersionConflict signals that an optimistic concurrency check failed:
// the row moved between read and write.
var ErrVersionConflict = errors.New("custody transaction version conflict")

const custodyColumns = `id, custody_no, agreement_id, agreement_line_id, customer_id, branch_code,
       original_vehicle_id, replacement_vehicle_id, custodian_name, custodian_type,
       reason_code, incident_narrative, incident_date, effective_from, expected_return_date,
       actual_return_date, rate_policy, special_rate_code, status, sla_breached,
       sla_target_approve_by, sla_target_handover_by, last_reminder_at, approved_by, approved_at,
       closed_by, closed_at, notes, created_by, created_at, updated_at`

// CustodyRepository persists custody transactions.
type CustodyRepository struct {
	db *sqlx.DB
}

// NewCustodyRepository constructs the repository.
func NewCustodyRepository(db *sqlx.DB) *CustodyRepository {
	return &CustodyRepository{db: db}
}

// Create inserts a draft transaction, assigning id, custody number, and
// timestamps. The custody number comes from a dedicated sequence and is
// never reused.
func (r *CustodyRepository) Create(ctx context.Context, tx *models.CustodyTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Status == "" {
		tx.Status = models.CustodyStatusDraft
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = tx.CreatedAt

	var seq int64
	if err := r.db.GetContext(ctx, &seq, `SELECT nextval('custody_no_seq')`); err != nil {
		return fmt.Errorf("next custody number: %w", err)
	}
	tx.CustodyNo = fmt.Sprintf("CST-%06d", seq)

	const query = `INSERT INTO custody_transactions
	(id, custody_no, agreement_id, agreement_line_id, customer_id, branch_code,
	 original_vehicle_id, replacement_vehicle_id, custodian_name, custodian_type,
	 reason_code, incident_narrative, incident_date, effective_from, expected_return_date,
	 actual_return_date, rate_policy, special_rate_code, status, sla_breached,
	 sla_target_approve_by, sla_target_handover_by, last_reminder_at, approved_by, approved_at,
	 closed_by, closed_at, notes, created_by, created_at, updated_at)
	VALUES (:id, :custody_no, :agreement_id, :agreement_line_id, :customer_id, :branch_code,
	 :original_vehicle_id, :replacement_vehicle_id, :custodian_name, :custodian_type,
	 :reason_code, :incident_narrative, :incident_date, :effective_from, :expected_return_date,
	 :actual_return_date, :rate_policy, :special_rate_code, :status, :sla_breached,
	 :sla_target_approve_by, :sla_target_handover_by, :last_reminder_at, :approved_by, :approved_at,
	 :closed_by, :closed_at, :notes, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tx); err != nil {
		return fmt.Errorf("create custody transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by identifier.
func (r *CustodyRepository) GetByID(ctx context.Context, id string) (*models.CustodyTransaction, error) {
	query := `SELECT ` + custodyColumns + ` FROM custody_transactions WHERE id = $1`
	var tx models.CustodyTransaction
	if err := r.db.GetContext(ctx, &tx, query, id); err != nil {
		return nil, err
	}
	return &tx, nil
}

// List returns transactions matching the filter, newest first, with the
// total count for pagination.
func (r *CustodyRepository) List(ctx context.Context, filter models.CustodyFilter) ([]models.CustodyTransaction, int, error) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 8)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ReasonCode != "" {
		args = append(args, filter.ReasonCode)
		conditions = append(conditions, fmt.Sprintf("reason_code = $%d", len(args)))
	}
	if filter.BranchCode != "" {
		args = append(args, filter.BranchCode)
		conditions = append(conditions, fmt.Sprintf("branch_code = $%d", len(args)))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(custody_no ILIKE $%d OR custodian_name ILIKE $%d OR incident_narrative ILIKE $%d)", len(args), len(args), len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM custody_transactions"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count custody transactions: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	query := "SELECT " + custodyColumns + " FROM custody_transactions" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	var txs []models.CustodyTransaction
	if err := r.db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list custody transactions: %w", err)
	}
	return txs, total, nil
}

// ListOpen returns all non-terminal transactions, for reconciliation sweeps.
func (r *CustodyRepository) ListOpen(ctx context.Context) ([]models.CustodyTransaction, error) {
	query := `SELECT ` + custodyColumns + ` FROM custody_transactions
	WHERE status NOT IN ($1, $2) ORDER BY created_at DESC`
	var txs []models.CustodyTransaction
	if err := r.db.SelectContext(ctx, &txs, query, models.CustodyStatusClosed, models.CustodyStatusVoided); err != nil {
		return nil, fmt.Errorf("list open custody transactions: %w", err)
	}
	return txs, nil
}

// ListActiveOverdue returns active transactions past their expected return date.
func (r *CustodyRepository) ListActiveOverdue(ctx context.Context, asOf time.Time) ([]models.CustodyTransaction, error) {
	query := `SELECT ` + custodyColumns + ` FROM custody_transactions
	WHERE status = $1 AND expected_return_date IS NOT NULL AND expected_return_date < $2
	ORDER BY expected_return_date ASC`
	var txs []models.CustodyTransaction
	if err := r.db.SelectContext(ctx, &txs, query, models.CustodyStatusActive, asOf); err != nil {
		return nil, fmt.Errorf("list overdue custody transactions: %w", err)
	}
	return txs, nil
}

// UpdateTransition writes the mutable workflow columns guarded by the
// updated_at optimistic concurrency check. The caller must have bumped
// tx.UpdatedAt; expectedUpdatedAt is the value read before mutation.
func (r *CustodyRepository) UpdateTransition(ctx context.Context, tx *models.CustodyTransaction, expectedUpdatedAt time.Time) error {
	const query = `UPDATE custody_transactions SET
	 replacement_vehicle_id = :replacement_vehicle_id,
	 expected_return_date = :expected_return_date,
	 actual_return_date = :actual_return_date,
	 status = :status,
	 sla_breached = :sla_breached,
	 sla_target_approve_by = :sla_target_approve_by,
	 sla_target_handover_by = :sla_target_handover_by,
	 approved_by = :approved_by,
	 approved_at = :approved_at,
	 closed_by = :closed_by,
	 closed_at = :closed_at,
	 notes = :notes,
	 updated_at = :updated_at
	WHERE id = :id AND updated_at = :expected_updated_at`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                     tx.ID,
		"replacement_vehicle_id": tx.ReplacementVehicleID,
		"expected_return_date":   tx.ExpectedReturnDate,
		"actual_return_date":     tx.ActualReturnDate,
		"status":                 tx.Status,
		"sla_breached":           tx.SLABreached,
		"sla_target_approve_by":  tx.SLATargetApproveBy,
		"sla_target_handover_by": tx.SLATargetHandoverBy,
		"approved_by":            tx.ApprovedBy,
		"approved_at":            tx.ApprovedAt,
		"closed_by":              tx.ClosedBy,
		"closed_at":              tx.ClosedAt,
		"notes":                  tx.Notes,
		"updated_at":             tx.UpdatedAt,
		"expected_updated_at":    expectedUpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("update custody transition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check custody update rows: %w", err)
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	return nil
}

// MarkSLABreached flips the monotonic breach flag. Returns true only when
// this call performed the false -> true transition, so callers can fire the
// breach dispatch exactly once.
func (r *CustodyRepository) MarkSLABreached(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE custody_transactions SET sla_breached = TRUE, updated_at = $2
	WHERE id = $1 AND sla_breached = FALSE`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark sla breached: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check sla breach rows: %w", err)
	}
	return rows > 0, nil
}

// MarkReminded stamps the overdue reminder marker, at most once per UTC day.
// Returns true only when this call moved the marker, so a reminder fires
// once however often the sweep runs.
func (r *CustodyRepository) MarkReminded(ctx context.Context, id string, asOf time.Time) (bool, error) {
	dayStart := asOf.UTC().Truncate(24 * time.Hour)
	const query = `UPDATE custody_transactions SET last_reminder_at = $2
	WHERE id = $1 AND (last_reminder_at IS NULL OR last_reminder_at < $3)`
	result, err := r.db.ExecContext(ctx, query, id, asOf.UTC(), dayStart)
	if err != nil {
		return false, fmt.Errorf("mark reminded: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check reminder rows: %w", err)
	}
	return rows > 0, nil
}

// Delete removes a draft transaction. Rows in any other state are left
// untouched and reported via sql.ErrNoRows semantics from the caller's read.
func (r *CustodyRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM custody_transactions WHERE id = $1 AND status = $2`,
		id, models.CustodyStatusDraft)
	if err != nil {
		return false, fmt.Errorf("delete custody transaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check custody delete rows: %w", err)
	}
	return rows > 0, nil
}

// GetStats aggregates workflow counters for a reporting period.
func (r *CustodyRepository) GetStats(ctx context.Context, from, to time.Time) (*models.CustodyStats, error) {
	const query = `SELECT
	 (SELECT COUNT(*) FROM custody_transactions WHERE status = 'ACTIVE') AS active_custodies,
	 (SELECT COUNT(*) FROM custody_transactions WHERE status = 'PENDING_APPROVAL') AS pending_approvals,
	 (SELECT COUNT(*) FROM custody_transactions WHERE sla_breached AND created_at BETWEEN $1 AND $2) AS sla_breaches,
	 (SELECT COUNT(*) FROM custody_transactions WHERE status = 'CLOSED' AND closed_at BETWEEN $1 AND $2) AS closed_this_period,
	 COALESCE((SELECT AVG(EXTRACT(EPOCH FROM (closed_at - effective_from)) / 86400.0)
	   FROM custody_transactions WHERE status = 'CLOSED' AND closed_at BETWEEN $1 AND $2), 0) AS avg_duration_days,
	 COALESCE((SELECT 100.0 * COUNT(*) FILTER (WHERE NOT sla_breached) / NULLIF(COUNT(*), 0)
	   FROM custody_transactions WHERE created_at BETWEEN $1 AND $2), 0) AS sla_compliance_pct`
	var stats models.CustodyStats
	if err := r.db.GetContext(ctx, &stats, query, from, to); err != nil {
		return nil, fmt.Errorf("custody stats: %w", err)
	}
	return &stats, nil
}
