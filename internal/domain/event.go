package domain

import "time"

// EventKind enumerates facts reported by the dispatcher about a target.
// Kinds are things that happened; TargetStatus is the resulting state.
type EventKind string

const (
	EventSending   EventKind = "sending"
	EventSent      EventKind = "sent"
	EventDelivered EventKind = "delivered"
	EventRead      EventKind = "read"
	EventFailed    EventKind = "failed"
	EventSkipped   EventKind = "skipped"
)

// TargetStatus maps an event kind onto the target state it implies.
func (k EventKind) TargetStatus() (TargetStatus, bool) {
	switch k {
	case EventSending, EventSent, EventDelivered, EventRead, EventFailed, EventSkipped:
		return TargetStatus(k), true
	}
	return "", false
}

// DeliveryEvent is an append-only record of something that happened to a
// target. It is the source of truth; target status is derived from it.
type DeliveryEvent struct {
	ID        int64          `json:"id"`
	RunID     string         `json:"run_id"`
	TargetID  string         `json:"target_id"`
	Kind      EventKind      `json:"kind"`
	Meta      map[string]any `json:"meta,omitempty"`
	// OccurredAt is the dispatcher's own timestamp when it sent a valid
	// one; nil means the event happened when it was recorded.
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// InboundEvent is a raw delivery callback accepted at the ingestion
// boundary, before it has been projected into a DeliveryEvent.
type InboundEvent struct {
	ID          int64     `json:"id"`
	OrgID       string    `json:"org_id"`
	Source      string    `json:"source"`
	EventType   string    `json:"event_type"`
	PayloadHash string    `json:"payload_hash"`
	Raw         []byte    `json:"-"`
	ReceivedAt  time.Time `json:"received_at"`
}

// StatusDomain names an independent namespace of status codes.
type StatusDomain string

const (
	DomainRun    StatusDomain = "run"
	DomainTarget StatusDomain = "target"
	DomainEvent  StatusDomain = "event"
)

// RunCounters are the per-bucket target counts of a run.
type RunCounters struct {
	Queued       int `json:"queued"`
	Sending      int `json:"sending"`
	SentOrBetter int `json:"sent_or_better"`
	Failed       int `json:"failed"`
}

// DisplayStatus derives the coarse dashboard status from telemetry. The
// stored run status lags the dispatcher, so any progress reads as running
// and a non-empty queue as scheduled; otherwise the raw status stands.
func (c RunCounters) DisplayStatus(raw RunStatus) RunStatus {
	if c.Sending+c.SentOrBetter > 0 {
		return RunRunning
	}
	if c.Queued > 0 {
		return RunScheduled
	}
	return raw
}

// RunSummary is one row of the active runs dashboard.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	CampaignID     string    `json:"campaign_id"`
	OrganizationID string    `json:"org_id"`
	Name           string    `json:"name"`
	Channel        string    `json:"channel"`
	RawStatus      RunStatus `json:"raw_status"`
	Status         RunStatus `json:"status"`
	StatusLabel    string    `json:"status_label"`
	RunCounters
	LastEventAt *time.Time `json:"last_event_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RecipientRow is one entry of a run's recent recipients view. A nil
// EventAt means the row is a queued target shown as filler, not a send.
type RecipientRow struct {
	TargetID        string       `json:"target_id"`
	ContactID       *string      `json:"contact_id"`
	DisplayName     string       `json:"display_name"`
	RecipientHandle string       `json:"wa_user_id"`
	PhoneE164       *string      `json:"phone_e164"`
	StatusDomain    StatusDomain `json:"status_domain"`
	StatusCode      string       `json:"status_code"`
	StatusLabel     string       `json:"status_label"`
	EventAt         *time.Time   `json:"event_at"`
}
