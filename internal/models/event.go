package models

// EventType enumerates workflow events the dispatcher can route.
type EventType string

const (
	EventSubmitted        EventType = "SUBMITTED"
	EventApproved         EventType = "APPROVED"
	EventRejected         EventType = "REJECTED"
	EventHandover         EventType = "HANDOVER"
	EventClosed           EventType = "CLOSED"
	EventVoided           EventType = "VOIDED"
	EventSLABreach        EventType = "SLA_BREACH"
	EventDocumentExpiring EventType = "DOCUMENT_EXPIRING_SOON"
	EventDocumentExpired  EventType = "DOCUMENT_EXPIRED"
	EventOverdueReminder  EventType = "OVERDUE_REMINDER"
	EventAutoClosed       EventType = "AUTO_CLOSED"
)
