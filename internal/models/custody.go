package models

import "time"

// CustodyStatus captures the lifecycle states of a custody transaction.
type CustodyStatus string

const (
	CustodyStatusDraft           CustodyStatus = "DRAFT"
	CustodyStatusPendingApproval CustodyStatus = "PENDING_APPROVAL"
	CustodyStatusApproved        CustodyStatus = "APPROVED"
	CustodyStatusActive          CustodyStatus = "ACTIVE"
	CustodyStatusClosed          CustodyStatus = "CLOSED"
	CustodyStatusVoided          CustodyStatus = "VOIDED"
)

// Terminal reports whether the status permits no further transitions.
func (s CustodyStatus) Terminal() bool {
	return s == CustodyStatusClosed || s == CustodyStatusVoided
}

// custodyTransitions is the directed graph of legal status moves. VOIDED is
// reachable from every non-terminal state through the administrative cancel.
var custodyTransitions = map[CustodyStatus][]CustodyStatus{
	CustodyStatusDraft:           {CustodyStatusPendingApproval, CustodyStatusVoided},
	CustodyStatusPendingApproval: {CustodyStatusApproved, CustodyStatusVoided},
	CustodyStatusApproved:        {CustodyStatusActive, CustodyStatusVoided},
	CustodyStatusActive:          {CustodyStatusClosed, CustodyStatusVoided},
	CustodyStatusClosed:          {},
	CustodyStatusVoided:          {},
}

// CanTransition reports whether from -> to follows an edge of the state graph.
func CanTransition(from, to CustodyStatus) bool {
	for _, next := range custodyTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ReasonCode enumerates why a replacement vehicle was required.
type ReasonCode string

const (
	ReasonAccident    ReasonCode = "ACCIDENT"
	ReasonBreakdown   ReasonCode = "BREAKDOWN"
	ReasonMaintenance ReasonCode = "MAINTENANCE"
	ReasonDamage      ReasonCode = "DAMAGE"
	ReasonOther       ReasonCode = "OTHER"
)

// Valid reports whether the reason code is a known value.
func (r ReasonCode) Valid() bool {
	switch r {
	case ReasonAccident, ReasonBreakdown, ReasonMaintenance, ReasonDamage, ReasonOther:
		return true
	}
	return false
}

// CustodianType identifies who holds the replacement vehicle.
type CustodianType string

const (
	CustodianCustomer   CustodianType = "CUSTOMER"
	CustodianDriver     CustodianType = "DRIVER"
	CustodianOriginator CustodianType = "ORIGINATOR"
)

// Valid reports whether the custodian type is a known value.
func (c CustodianType) Valid() bool {
	switch c {
	case CustodianCustomer, CustodianDriver, CustodianOriginator:
		return true
	}
	return false
}

// RatePolicy determines how the replacement period is billed.
type RatePolicy string

const (
	RateInherit     RatePolicy = "INHERIT"
	RateProrate     RatePolicy = "PRORATE"
	RateFree        RatePolicy = "FREE"
	RateSpecialCode RatePolicy = "SPECIAL_CODE"
)

// Valid reports whether the rate policy is a known value.
func (r RatePolicy) Valid() bool {
	switch r {
	case RateInherit, RateProrate, RateFree, RateSpecialCode:
		return true
	}
	return false
}

// CustodyTransaction is the aggregate root of the vehicle replacement workflow.
type CustodyTransaction struct {
	ID                   string        `db:"id" json:"id"`
	CustodyNo            string        `db:"custody_no" json:"custodyNo"`
	AgreementID          string        `db:"agreement_id" json:"agreementId"`
	AgreementLineID      *string       `db:"agreement_line_id" json:"agreementLineId,omitempty"`
	CustomerID           string        `db:"customer_id" json:"customerId"`
	BranchCode           string        `db:"branch_code" json:"branchCode"`
	OriginalVehicleID    string        `db:"original_vehicle_id" json:"originalVehicleId"`
	ReplacementVehicleID *string       `db:"replacement_vehicle_id" json:"replacementVehicleId,omitempty"`
	CustodianName        string        `db:"custodian_name" json:"custodianName"`
	CustodianType        CustodianType `db:"custodian_type" json:"custodianType"`
	ReasonCode           ReasonCode    `db:"reason_code" json:"reasonCode"`
	IncidentNarrative    string        `db:"incident_narrative" json:"incidentNarrative"`
	IncidentDate         time.Time     `db:"incident_date" json:"incidentDate"`
	EffectiveFrom        time.Time     `db:"effective_from" json:"effectiveFrom"`
	ExpectedReturnDate   *time.Time    `db:"expected_return_date" json:"expectedReturnDate,omitempty"`
	ActualReturnDate     *time.Time    `db:"actual_return_date" json:"actualReturnDate,omitempty"`
	RatePolicy           RatePolicy    `db:"rate_policy" json:"ratePolicy"`
	SpecialRateCode      *string       `db:"special_rate_code" json:"specialRateCode,omitempty"`
	Status               CustodyStatus `db:"status" json:"status"`
	SLABreached          bool          `db:"sla_breached" json:"slaBreached"`
	SLATargetApproveBy   *time.Time    `db:"sla_target_approve_by" json:"slaTargetApproveBy,omitempty"`
	SLATargetHandoverBy  *time.Time    `db:"sla_target_handover_by" json:"slaTargetHandoverBy,omitempty"`
	LastReminderAt       *time.Time    `db:"last_reminder_at" json:"lastReminderAt,omitempty"`
	ApprovedBy           *string       `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt           *time.Time    `db:"approved_at" json:"approvedAt,omitempty"`
	ClosedBy             *string       `db:"closed_by" json:"closedBy,omitempty"`
	ClosedAt             *time.Time    `db:"closed_at" json:"closedAt,omitempty"`
	Notes                *string       `db:"notes" json:"notes,omitempty"`
	CreatedBy            string        `db:"created_by" json:"createdBy"`
	CreatedAt            time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updatedAt"`
}

// CustodyFilter constrains listing queries.
type CustodyFilter struct {
	Status     []CustodyStatus
	ReasonCode ReasonCode
	BranchCode string
	CustomerID string
	Search     string
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}
