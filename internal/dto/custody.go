package dto

import (
	"time"

	"github.com/fleetdesk/custody-api/internal/models"
)

// CreateCustodyRequest opens a new draft custody transaction.
type CreateCustodyRequest struct {
	AgreementID        string               `json:"agreementId" binding:"required"`
	AgreementLineID    *string              `json:"agreementLineId"`
	CustomerID         string               `json:"customerId" binding:"required"`
	BranchCode         string               `json:"branchCode"`
	OriginalVehicleID  string               `json:"originalVehicleId" binding:"required"`
	CustodianName      string               `json:"custodianName" binding:"required"`
	CustodianType      models.CustodianType `json:"custodianType" binding:"required"`
	ReasonCode         models.ReasonCode    `json:"reasonCode" binding:"required"`
	IncidentNarrative  string               `json:"incidentNarrative"`
	IncidentDate       time.Time            `json:"incidentDate" binding:"required"`
	EffectiveFrom      time.Time            `json:"effectiveFrom" binding:"required"`
	ExpectedReturnDate *time.Time           `json:"expectedReturnDate"`
	RatePolicy         models.RatePolicy    `json:"ratePolicy"`
	SpecialRateCode    *string              `json:"specialRateCode"`
	Notes              *string              `json:"notes"`
}

// DecisionRequest records one approver's verdict.
type DecisionRequest struct {
	Notes string `json:"notes"`
}

// RejectRequest vetoes a pending transaction.
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ActivateRequest hands the replacement vehicle over.
type ActivateRequest struct {
	ReplacementVehicleID string `json:"replacementVehicleId"`
}

// ReturnRequest records the physical return of the replacement vehicle.
type ReturnRequest struct {
	ActualReturnDate time.Time `json:"actualReturnDate" binding:"required"`
	Notes            string    `json:"notes"`
}

// CloseRequest finalises an active transaction.
type CloseRequest struct {
	Notes string `json:"notes"`
}

// VoidRequest administratively cancels a non-terminal transaction.
type VoidRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// AttachDocumentRequest links paperwork to a transaction.
type AttachDocumentRequest struct {
	DocType   models.DocumentType `json:"docType" binding:"required"`
	Reference string              `json:"reference" binding:"required"`
	IssuedAt  *time.Time          `json:"issuedAt"`
	ExpiresAt *time.Time          `json:"expiresAt"`
}

// CustodyQuery captures list filters from the query string.
type CustodyQuery struct {
	Status     string `form:"status"`
	ReasonCode string `form:"reasonCode"`
	BranchCode string `form:"branchCode"`
	CustomerID string `form:"customerId"`
	Search     string `form:"search"`
	From       string `form:"from"`
	To         string `form:"to"`
	Page       int    `form:"page"`
	PageSize   int    `form:"pageSize"`
}

// CustodyDetail bundles the aggregate with its child rows for detail views.
type CustodyDetail struct {
	Transaction *models.CustodyTransaction `json:"transaction"`
	Approvals   []models.Approval          `json:"approvals"`
	Documents   []models.CustodyDocument   `json:"documents"`
}

// StatsQuery bounds the statistics aggregation period.
type StatsQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}
