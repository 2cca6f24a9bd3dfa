package models

import "time"

// WebhookType identifies the partner integration a call targets.
type WebhookType string

const (
	WebhookFleetSync      WebhookType = "FLEET_SYNC"
	WebhookBillingInvoice WebhookType = "BILLING_INVOICE"
	WebhookClaimsSubmit   WebhookType = "CLAIMS_SUBMIT"
)

// WebhookLogEntry records one delivery attempt against a partner endpoint.
// The log is append-only: a retry adds a fresh row carrying an incremented
// RetryCount rather than rewriting history.
type WebhookLogEntry struct {
	ID           string      `db:"id" json:"id"`
	CustodyID    string      `db:"custody_id" json:"custodyId"`
	WebhookType  WebhookType `db:"webhook_type" json:"webhookType"`
	EventType    EventType   `db:"event_type" json:"eventType"`
	Endpoint     string      `db:"endpoint" json:"endpoint"`
	Payload      []byte      `db:"payload" json:"payload"`
	Response     *string     `db:"response" json:"response,omitempty"`
	StatusCode   *int        `db:"status_code" json:"statusCode,omitempty"`
	Success      bool        `db:"success" json:"success"`
	ErrorMessage *string     `db:"error_message" json:"errorMessage,omitempty"`
	RetryCount   int         `db:"retry_count" json:"retryCount"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
}
