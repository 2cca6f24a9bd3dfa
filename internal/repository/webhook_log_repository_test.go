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

func newWebhookLogRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func webhookLogColumns() []string {
	return []string{"id", "custody_id", "webhook_type", "event_type", "endpoint", "payload", "response",
		"status_code", "success", "error_message", "retry_count", "created_at"}
}

func TestWebhookLogRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newWebhookLogRepoMock(t)
	defer cleanup()
	repo := NewWebhookLogRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO custody_webhook_log")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.WebhookLogEntry{
		CustodyID:   "tx-1",
		WebhookType: models.WebhookFleetSync,
		EventType:   models.EventHandover,
		Endpoint:    "https://fleet.example/sync",
		Payload:     []byte(`{"custodyId":"tx-1"}`),
		Success:     true,
	}
	require.NoError(t, repo.Create(context.Background(), entry))
	require.NotEmpty(t, entry.ID)
	require.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookLogRepositoryListByCustody(t *testing.T) {
	db, mock, cleanup := newWebhookLogRepoMock(t)
	defer cleanup()
	repo := NewWebhookLogRepository(db)

	now := time.Now().UTC()
	status := 200
	rows := sqlmock.NewRows(webhookLogColumns()).
		AddRow("log-1", "tx-1", models.WebhookFleetSync, models.EventHandover, "https://fleet.example/sync",
			[]byte(`{}`), nil, status, true, nil, 0, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, custody_id, webhook_type")).
		WithArgs("tx-1").
		WillReturnRows(rows)

	entries, err := repo.ListByCustody(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Success)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookLogRepositoryListFailedRetryable(t *testing.T) {
	db, mock, cleanup := newWebhookLogRepoMock(t)
	defer cleanup()
	repo := NewWebhookLogRepository(db)

	now := time.Now().UTC()
	errMsg := "upstream returned 503"
	rows := sqlmock.NewRows(webhookLogColumns()).
		AddRow("log-3", "tx-1", models.WebhookBillingInvoice, models.EventClosed, "https://billing.example/invoice",
			[]byte(`{}`), nil, 503, false, errMsg, 1, now.Add(-10*time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT ON (custody_id, webhook_type, event_type)")).
		WithArgs(3, sqlmock.AnyArg()).
		WillReturnRows(rows)

	entries, err := repo.ListFailedRetryable(context.Background(), 24*time.Hour, 3)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, models.WebhookBillingInvoice, entries[0].WebhookType)
	require.Equal(t, 1, entries[0].RetryCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
