package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/custody-api/internal/models"
)

func newCustodyRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func custodyRowColumns() []string {
	return []string{
		"id", "custody_no", "agreement_id", "agreement_line_id", "customer_id", "branch_code",
		"original_vehicle_id", "replacement_vehicle_id", "custodian_name", "custodian_type",
		"reason_code", "incident_narrative", "incident_date", "effective_from", "expected_return_date",
		"actual_return_date", "rate_policy", "special_rate_code", "status", "sla_breached",
		"sla_target_approve_by", "sla_target_handover_by", "last_reminder_at", "approved_by", "approved_at",
		"closed_by", "closed_at", "notes", "created_by", "created_at", "updated_at",
	}
}

func addCustodyRow(rows *sqlmock.Rows, id, custodyNo string, status models.CustodyStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(id, custodyNo, "agr-1", nil, "cust-1", "JKT01",
		"veh-1", nil, "Budi Santoso", models.CustodianCustomer,
		models.ReasonBreakdown, "engine failure on toll road", now, now, nil,
		nil, models.RateInherit, nil, status, false,
		nil, nil, nil, nil, nil,
		nil, nil, nil, "op-1", now, now)
}

func TestCustodyRepositoryCreateAssignsNumber(t *testing.T) {
	db, mock, cleanup := newCustodyRepoMock(t)
	defer cleanup()
	repo := NewCustodyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('custody_no_seq')")).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(42)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO custody_transactions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tx := &models.CustodyTransaction{
		AgreementID:       "agr-1",
		CustomerID:        "cust-1",
		BranchCode:        "JKT01",
		OriginalVehicleID: "veh-1",
		CustodianName:     "Budi Santoso",
		CustodianType:     models.CustodianCustomer,
		ReasonCode:        models.ReasonBreakdown,
		CreatedBy:         "op-1",
	}
	require.NoError(t, repo.Create(context.Background(), tx))
	require.NotEmpty(t, tx.ID)
	require.Equal(t, "CST-000042", tx.CustodyNo)
	require.Equal(t, models.CustodyStatusDraft, tx.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCustodyRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newCustodyRepoMock(t)
	defer cleanup()
	repo := NewCustodyRepository(db)

	rows := addCustodyRow(sqlmock.NewRows(custodyRowColumns()), "tx-1", "CST-000001", models.CustodyStatusActive)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, custody_no")).
		WithArgs("tx-1").
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, "CST-000001", found.CustodyNo)
	require.Equal(t, models.CustodyStatusActive, found.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCustodyRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newCustodyRepoMock(t)
	defer cleanup()
	repo := NewCustodyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM custody_transactions")).
		WithArgs(models.CustodyStatusActive, "JKT01").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	rows := addCustodyRow(sqlmock.NewRows(custodyRowColumns()), "tx-1", "CST-000001", models.CustodyStatusActive)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, custody_no")).
		WithArgs(models.CustodyStatusActive, "JKT01").
		WillReturnRows(rows)

	list, total, err := repo.List(context.Background(), models.CustodyFilter{
		Status:     []models.CustodyStatus{models.CustodyStatusActive},
		BranchCode: "JKT01",
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)
	require.Equal(t, "tx-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCustodyRepositoryUpdateTransitionVersionConflict(t *testing.T) {
	db, mock, cleanup := newCustodyRepoMock(t)
	defer cleanup()
	repo := NewCustodyRepository(db)

	expected := time.Now().UTC().Add(-time.Minute)
	tx := &models.CustodyTransaction{
		ID:        "tx-1",
		Status:    models.CustodyStatusPendingApproval,
		UpdatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE custody_transactions SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateTransition(context.Background(), tx, expected))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE custody_transactions SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateTransition(context.Background(), tx, expected)
	require.ErrorIs(t, err, ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCustodyRepositoryMarkSLABreachedFlipsOnce(t *testing.T) {
	db, mock, cleanup := newCustodyRepoMock(t)
	defer cleanup()
	repo := NewCustodyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE custody_transactions SET sla_breached = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	flipped, err := repo.MarkSLABreached(context.Background(), "tx-1")
	require.NoError(t, err)
	require.True(t, flipped)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE custody_transactions SET sla_breached = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	flipped, err = repo.MarkSLABreached(context.Background(), "tx-1")
	require.NoError(t, err)
	require.False(t, flipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCustodyRepositoryMarkRemindedOncePerDay(t *testing.T) {
	db, mock, cleanup := newCustodyRepoMock(t)
	defer cleanup()
	repo := NewCustodyRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE custody_transactions SET last_reminder_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	flipped, err := repo.MarkReminded(context.Background(), "tx-1", now)
	require.NoError(t, err)
	require.True(t, flipped)

	// Marker already inside today's window, the guard clause matches no rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE custody_transactions SET last_reminder_at")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	flipped, err = repo.MarkReminded(context.Background(), "tx-1", now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, flipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCustodyRepositoryDeleteDraftOnly(t *testing.T) {
	db, mock, cleanup := newCustodyRepoMock(t)
	defer cleanup()
	repo := NewCustodyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM custody_transactions")).
		WithArgs("tx-1", models.CustodyStatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 1))
	deleted, err := repo.Delete(context.Background(), "tx-1")
	require.NoError(t, err)
	require.True(t, deleted)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM custody_transactions")).
		WithArgs("tx-2", models.CustodyStatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))
	deleted, err = repo.Delete(context.Background(), "tx-2")
	require.NoError(t, err)
	require.False(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
