package model

import "time"

// ClickEvent represents a single interaction with a tracked short link.
type ClickEvent struct {
	ID      string `json:"id"`                 // ULID (time-sortable)
	EventID string `json:"event_id,omitempty"` // Idempotency key (Redis stream ID)

	// Tenant and link reference
	OrgID     string `json:"org_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	LinkID    string `json:"link_id"`

	// Request metadata
	Referrer    string `json:"referrer,omitempty"`     // truncated 500 chars
	UserAgent   string `json:"user_agent,omitempty"`   // truncated 500 chars
	DeviceClass string `json:"device_class,omitempty"` // mobile, desktop, tablet, bot

	// Coarse identity used only for distinct counting:
	// SHA256(user_agent | device_class)[0:16]
	IdentityKey string `json:"identity_key"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at,omitempty"` // DB insertion time
}
