package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/custody-api/internal/models"
	appErrors "github.com/fleetdesk/custody-api/pkg/errors"
	"github.com/fleetdesk/custody-api/pkg/export"
)

type mockExportStore struct {
	transactions []models.CustodyTransaction
	lastFilter   models.CustodyFilter
}

func (m *mockExportStore) List(ctx context.Context, filter models.CustodyFilter) ([]models.CustodyTransaction, int, error) {
	m.lastFilter = filter
	return m.transactions, len(m.transactions), nil
}

func exportFixtureTransactions() []models.CustodyTransaction {
	replacement := "veh-9"
	effective := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	return []models.CustodyTransaction{{
		ID:                   "tx-1",
		CustodyNo:            "CST-000001",
		CustomerID:           "cust-1",
		BranchCode:           "JKT01",
		OriginalVehicleID:    "veh-1",
		ReplacementVehicleID: &replacement,
		CustodianName:        "Budi Santoso",
		ReasonCode:           models.ReasonBreakdown,
		Status:               models.CustodyStatusActive,
		EffectiveFrom:        effective,
		CreatedAt:            effective,
	}}
}

func TestExportServiceGenerateCSV(t *testing.T) {
	store := &mockExportStore{transactions: exportFixtureTransactions()}
	svc := NewExportService(store, nil, nil, nil)

	file, err := svc.Generate(context.Background(), models.CustodyFilter{Page: 3, PageSize: 5}, ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.HasPrefix(file.Filename, "custody_transactions_"))
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))

	body := string(file.Payload)
	assert.Contains(t, body, "Custody No")
	assert.Contains(t, body, "CST-000001")
	assert.Contains(t, body, "veh-9")

	// Exports always cover the full match set regardless of request paging.
	assert.Equal(t, 1, store.lastFilter.Page)
	assert.Equal(t, 10000, store.lastFilter.PageSize)
}

func TestExportServiceGeneratePDF(t *testing.T) {
	store := &mockExportStore{transactions: exportFixtureTransactions()}
	svc := NewExportService(store, nil, nil, nil)

	file, err := svc.Generate(context.Background(), models.CustodyFilter{}, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasSuffix(file.Filename, ".pdf"))
	assert.NotEmpty(t, file.Payload)
}

func TestExportServiceUnsupportedFormat(t *testing.T) {
	svc := NewExportService(&mockExportStore{}, nil, nil, nil)

	_, err := svc.Generate(context.Background(), models.CustodyFilter{}, ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

type failingRenderer struct{}

func (failingRenderer) Render(export.Dataset) ([]byte, error) {
	return nil, assert.AnError
}

func TestExportServiceRendererFailure(t *testing.T) {
	svc := NewExportService(&mockExportStore{}, nil, failingRenderer{}, nil)

	_, err := svc.Generate(context.Background(), models.CustodyFilter{}, ExportFormatCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
