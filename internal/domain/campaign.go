package domain

import (
	"strings"
	"time"
)

// CampaignStatus enumerates the coarse lifecycle of a campaign definition.
// It is looser than RunStatus: a campaign may still read "running" while a
// new run is launched for it.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignArchived  CampaignStatus = "archived"
)

const (
	DefaultChannel      = "whatsapp.evolution"
	DefaultCampaignName = "Campanha (draft)"
)

// Campaign is a durable outreach definition owned by an organization.
// Campaigns are archived, never deleted.
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"org_id" db:"org_id"`
	Name           string         `json:"name" db:"name"`
	Channel        string         `json:"channel" db:"channel"`
	Segment        Segment        `json:"segment" db:"segment"`
	Message        *MessageConfig `json:"message,omitempty" db:"message"`
	// Throttle holds campaign-level defaults saved by scheduling.
	Throttle  *ThrottlePatch `json:"throttle,omitempty" db:"throttle"`
	Status    CampaignStatus `json:"status" db:"status"`
	CreatedBy string         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// IsArchived returns true if the campaign can no longer be launched.
func (c *Campaign) IsArchived() bool {
	return c.Status == CampaignArchived
}

// EffectiveThrottle resolves the policy a new run would freeze. The
// throttle embedded in the segment wins over the campaign-level one, and
// both are completed field by field from defaults.
func (c *Campaign) EffectiveThrottle(defaults ThrottleConfig) ThrottleConfig {
	base := c.Throttle.Apply(defaults)
	return c.Segment.Throttle.Apply(base)
}

// MessageType enumerates the supported WhatsApp message kinds.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageAudio MessageType = "audio"
	MessageVideo MessageType = "video"
)

// MinTextBodyLength is the shortest free-text body accepted without a template.
const MinTextBodyLength = 5

// MessageConfig is the message attached to a campaign.
type MessageConfig struct {
	Type       MessageType       `json:"type"`
	TemplateID string            `json:"template_id,omitempty"`
	Body       string            `json:"body,omitempty"`
	MediaURL   string            `json:"media_url,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// Validate applies the per-type content rules.
func (m MessageConfig) Validate() error {
	switch m.Type {
	case MessageText:
		if m.TemplateID == "" && len([]rune(strings.TrimSpace(m.Body))) < MinTextBodyLength {
			return Invalid("text_body_or_template_required", "")
		}
	case MessageAudio, MessageVideo:
		if m.TemplateID == "" && strings.TrimSpace(m.MediaURL) == "" {
			return Invalid("media_url_or_template_required", "")
		}
	default:
		return Invalid("invalid_message_type", string(m.Type))
	}
	return nil
}
