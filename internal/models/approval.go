package models

import "time"

// ApprovalStatus captures an approver's decision state.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// Approval is one required approver slot on a custody transaction. A row is
// created per configured approver when the transaction enters pending
// approval and is immutable once decided.
type Approval struct {
	ID         string         `db:"id" json:"id"`
	CustodyID  string         `db:"custody_id" json:"custodyId"`
	ApproverID string         `db:"approver_id" json:"approverId"`
	Status     ApprovalStatus `db:"status" json:"status"`
	DecidedAt  *time.Time     `db:"decided_at" json:"decidedAt,omitempty"`
	Notes      *string        `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}
