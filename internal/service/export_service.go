package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fleetdesk/custody-api/internal/models"
	appErrors "github.com/fleetdesk/custody-api/pkg/errors"
	"github.com/fleetdesk/custody-api/pkg/export"
)

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type exportCustodyStore interface {
	List(ctx context.Context, filter models.CustodyFilter) ([]models.CustodyTransaction, int, error)
}

// ExportFile is a rendered export ready to stream to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders filtered custody listings as downloadable files.
type ExportService struct {
	custody exportCustodyStore
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(custody exportCustodyStore, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		custody: custody,
		csv:     csv,
		pdf:     pdf,
		logger:  logger,
	}
}

// Generate renders the custody transactions matching the filter. The filter
// paging is ignored; exports always cover the full match set in one file.
func (s *ExportService) Generate(ctx context.Context, filter models.CustodyFilter, format ExportFormat) (*ExportFile, error) {
	filter.Page = 1
	filter.PageSize = 10000
	transactions, total, err := s.custody.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("building custody export",
		zap.String("format", string(format)),
		zap.Int("rows", len(transactions)),
		zap.Int("total", total))

	dataset := buildCustodyDataset(transactions)
	timestamp := time.Now().UTC().Format("20060102_150405")

	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("custody_transactions_%s.csv", timestamp),
			ContentType: "text/csv",
			Payload:     payload,
		}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, "Custody Transactions")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("custody_transactions_%s.pdf", timestamp),
			ContentType: "application/pdf",
			Payload:     payload,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func buildCustodyDataset(transactions []models.CustodyTransaction) export.Dataset {
	headers := []string{
		"Custody No", "Status", "Reason", "Branch", "Customer ID",
		"Custodian", "Original Vehicle", "Replacement Vehicle",
		"Effective From", "Expected Return", "Actual Return",
		"SLA Breached", "Created At",
	}
	rows := make([]map[string]string, 0, len(transactions))
	for _, tx := range transactions {
		rows = append(rows, map[string]string{
			"Custody No":          tx.CustodyNo,
			"Status":              string(tx.Status),
			"Reason":              string(tx.ReasonCode),
			"Branch":              tx.BranchCode,
			"Customer ID":         tx.CustomerID,
			"Custodian":           tx.CustodianName,
			"Original Vehicle":    tx.OriginalVehicleID,
			"Replacement Vehicle": derefString(tx.ReplacementVehicleID),
			"Effective From":      tx.EffectiveFrom.UTC().Format("2006-01-02"),
			"Expected Return":     formatExportDate(tx.ExpectedReturnDate),
			"Actual Return":       formatExportDate(tx.ActualReturnDate),
			"SLA Breached":        fmt.Sprintf("%t", tx.SLABreached),
			"Created At":          tx.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatExportDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
