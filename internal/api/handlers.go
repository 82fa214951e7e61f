// Package api exposes the campaign engine over HTTP.
package api

import (
	"context"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/message"
	"github.com/ignite/wa-outreach/internal/service/campaign"
)

// CampaignService is the authoring and run lifecycle surface used by the
// handlers. *campaign.Service implements it.
type CampaignService interface {
	Create(ctx context.Context, orgID string, input campaign.CreateInput) (*domain.Campaign, error)
	Get(ctx context.Context, orgID, id string) (*domain.Campaign, error)
	List(ctx context.Context, orgID string, f campaign.ListFilter) ([]domain.Campaign, int, error)
	UpdateAudience(ctx context.Context, orgID, id string, spec domain.AudienceSpec) (*domain.Campaign, error)
	UpdateMessage(ctx context.Context, orgID, id string, m domain.MessageConfig) (*domain.Campaign, error)
	Schedule(ctx context.Context, orgID, id string, in campaign.ScheduleInput) (domain.ThrottleConfig, error)
	Estimate(ctx context.Context, orgID, id string) (int, error)
	Archive(ctx context.Context, orgID, id string) error
	Preview(ctx context.Context, orgID, id string, vars map[string]any) (*message.Preview, error)
	Presets(ctx context.Context, orgID, groupRef string) ([]domain.SegmentPreset, error)
	Templates() map[domain.MessageType][]message.Template

	Launch(ctx context.Context, orgID, id string) (*campaign.LaunchResult, error)
	GetRun(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error)
	PauseRun(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error)
	ResumeRun(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error)
	CompleteRun(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error)
	FailRun(ctx context.Context, orgID, runID, reason string) (*domain.CampaignRun, error)
}

// StatusService serves the progress views. *status.Service implements it.
type StatusService interface {
	Summarize(ctx context.Context, orgID, locale string) ([]domain.RunSummary, error)
	RecentRecipients(ctx context.Context, orgID, runID string, limit int, locale string) ([]domain.RecipientRow, error)
	Invalidate(ctx context.Context, orgID string)
}

// EventReceiver stores delivery callbacks. *ingest.Receiver implements it.
type EventReceiver interface {
	Accept(ctx context.Context, orgID string, body []byte) (bool, error)
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	campaigns CampaignService
	status    StatusService
	events    EventReceiver
}

// NewHandlers creates a new Handlers instance. events may be nil, in which
// case the ingestion endpoint is not mounted.
func NewHandlers(campaigns CampaignService, status StatusService, events EventReceiver) *Handlers {
	return &Handlers{campaigns: campaigns, status: status, events: events}
}
