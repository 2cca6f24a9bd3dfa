package models

import "time"

// NotificationPreference is a per-user, per-event opt-out toggle. Absence of
// a row means the event is delivered.
type NotificationPreference struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	EventType EventType `db:"event_type" json:"eventType"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Notification is the payload handed to the outbound sender.
type Notification struct {
	Recipient string                 `json:"recipient"`
	EventType EventType              `json:"eventType"`
	CustodyID string                 `json:"custodyId"`
	CustodyNo string                 `json:"custodyNo"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}
