package models

import "time"

// DocumentType classifies paperwork attached to a custody transaction.
type DocumentType string

const (
	DocumentAccidentReport DocumentType = "ACCIDENT_REPORT"
	DocumentInsurance      DocumentType = "INSURANCE"
	DocumentHandoverForm   DocumentType = "HANDOVER_FORM"
	DocumentOther          DocumentType = "OTHER"
)

// CustodyDocument references paperwork held against a custody transaction.
// Expiring documents are swept by the reconciliation scheduler.
type CustodyDocument struct {
	ID        string       `db:"id" json:"id"`
	CustodyID string       `db:"custody_id" json:"custodyId"`
	DocType   DocumentType `db:"doc_type" json:"docType"`
	Reference string       `db:"reference" json:"reference"`
	IssuedAt  *time.Time   `db:"issued_at" json:"issuedAt,omitempty"`
	ExpiresAt *time.Time   `db:"expires_at" json:"expiresAt,omitempty"`
	// LastNotifiedAt marks the latest expiry notification, at most one per day.
	LastNotifiedAt *time.Time `db:"last_notified_at" json:"lastNotifiedAt,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}
