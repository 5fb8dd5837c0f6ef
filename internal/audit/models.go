package audit

import "time"

// Event is an immutable, append-only journal record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
//
// Storage (Postgres): table dialer_audit_events, INSERT-only from this service.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// Actor is the authenticated login causing the event; empty for provider-driven events.
	Actor string `json:"actor,omitempty" db:"actor"`
	Role  string `json:"role,omitempty" db:"role"`

	IPAddress string `json:"ipAddress,omitempty" db:"ip_address"`

	CallID      string `json:"sid,omitempty" db:"call_id"`
	Destination string `json:"number,omitempty" db:"destination"`
	Status      string `json:"status,omitempty" db:"status"`

	// Message is a short human-readable description for ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type EventType string

const (
	EventTypeCampaignControl EventType = "campaign_control"
	EventTypeManualCall      EventType = "manual_call"
	EventTypeCallOutcome     EventType = "call_outcome"
)

// Actor identifies who triggered an operator action.
type Actor struct {
	Login string
	Role  string
	IP    string
}
