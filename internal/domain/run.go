package domain

import "time"

// RunStatus enumerates the states of a single campaign execution.
type RunStatus string

const (
	RunScheduled RunStatus = "scheduled"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunDone      RunStatus = "done"
	RunDead      RunStatus = "dead"
)

// ActiveRunStatuses are the states shown on the live dashboard.
var ActiveRunStatuses = []RunStatus{RunScheduled, RunRunning, RunPaused}

// runTransitions maps a target state to the states it may be entered from.
var runTransitions = map[RunStatus][]RunStatus{
	RunRunning: {RunScheduled, RunPaused},
	RunPaused:  {RunRunning},
	RunDone:    {RunRunning},
	RunDead:    {RunScheduled, RunRunning, RunPaused},
}

// IsTerminal returns true for done and dead.
func (s RunStatus) IsTerminal() bool {
	return s == RunDone || s == RunDead
}

// AllowedFrom returns the states from which next may be entered.
func AllowedFrom(next RunStatus) []RunStatus {
	return runTransitions[next]
}

// CanTransition reports whether from → to is a legal run transition.
func CanTransition(from, to RunStatus) bool {
	for _, s := range runTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// CampaignRun is one execution attempt of a campaign. FrozenConfig is
// copied at creation and never updated afterwards.
type CampaignRun struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"org_id" db:"org_id"`
	CampaignID     string         `json:"campaign_id" db:"campaign_id"`
	Status         RunStatus      `json:"status" db:"status"`
	FrozenConfig   ThrottleConfig `json:"cfg" db:"cfg"`
	StartedAt      *time.Time     `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at" db:"finished_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// TargetStatus enumerates the delivery state of one recipient in a run.
type TargetStatus string

const (
	TargetQueued    TargetStatus = "queued"
	TargetSending   TargetStatus = "sending"
	TargetSent      TargetStatus = "sent"
	TargetDelivered TargetStatus = "delivered"
	TargetRead      TargetStatus = "read"
	TargetFailed    TargetStatus = "failed"
	TargetSkipped   TargetStatus = "skipped"
)

// TargetStatuses lists every target status.
var TargetStatuses = []TargetStatus{
	TargetQueued, TargetSending, TargetSent, TargetDelivered, TargetRead, TargetFailed, TargetSkipped,
}

// SentOrBetterStatuses are counted together as progress.
var SentOrBetterStatuses = []TargetStatus{TargetSent, TargetDelivered, TargetRead}

var targetRank = map[TargetStatus]int{
	TargetQueued:    0,
	TargetSending:   1,
	TargetSent:      2,
	TargetDelivered: 3,
	TargetRead:      4,
}

// Advances reports whether moving a target from s to next is a forward
// step. Delivery progress never moves backwards; failed and skipped may
// only replace a state that has not yet been sent.
func (s TargetStatus) Advances(next TargetStatus) bool {
	switch next {
	case TargetFailed, TargetSkipped:
		return s == TargetQueued || s == TargetSending
	}
	cur, ok := targetRank[s]
	if !ok {
		return false
	}
	n, ok := targetRank[next]
	return ok && n > cur
}

// TargetAdvancesFrom returns the statuses a target may hold for next to be
// applied.
func TargetAdvancesFrom(next TargetStatus) []TargetStatus {
	var out []TargetStatus
	for _, s := range TargetStatuses {
		if s.Advances(next) {
			out = append(out, s)
		}
	}
	return out
}

// CampaignTarget is one recipient's delivery record within a run. At most
// one row exists per (run, recipient handle) and per (run, contact).
type CampaignTarget struct {
	ID              string         `json:"id" db:"id"`
	RunID           string         `json:"run_id" db:"run_id"`
	OrganizationID  string         `json:"org_id" db:"org_id"`
	CampaignID      string         `json:"campaign_id" db:"campaign_id"`
	ContactID       *string        `json:"contact_id" db:"contact_id"`
	RecipientHandle string         `json:"wa_user_id" db:"wa_user_id"`
	PhoneE164       *string        `json:"phone_e164" db:"phone_e164"`
	Variables       map[string]any `json:"variables" db:"variables"`
	Status          TargetStatus   `json:"status" db:"status"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// MaterializeResult is returned by a successful launch.
type MaterializeResult struct {
	RunID    string `json:"run_id"`
	Inserted int    `json:"inserted"`
}
