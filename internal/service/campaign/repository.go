package campaign

import (
	"context"

	"github.com/ignite/wa-outreach/internal/audience"
	"github.com/ignite/wa-outreach/internal/dispatch"
	"github.com/ignite/wa-outreach/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist
	// or belongs to another organization.
	Get(ctx context.Context, orgID, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, orgID string, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// Update modifies a campaign. Only non-nil fields are applied.
	Update(ctx context.Context, orgID, id string, u UpdateFields) error
}

// RunRepository reads runs and applies lifecycle transitions.
type RunRepository interface {
	GetRun(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error)

	// Transition moves a run to next if its current status is in from.
	// Returns ErrRunNotFound when the run is absent and ErrInvalidTransition
	// when it exists in another state.
	Transition(ctx context.Context, orgID, runID string, from []domain.RunStatus, next domain.RunStatus) (*domain.CampaignRun, error)
}

// Materializer creates a run and its targets atomically. The run is
// inserted as scheduled with cfg frozen, targets are inserted from the
// fragment skipping duplicates, and the run flips to running before commit.
type Materializer interface {
	MaterializeAndRun(ctx context.Context, c *domain.Campaign, recipients audience.Fragment, cfg domain.ThrottleConfig) (*domain.MaterializeResult, error)
}

// AudienceCounter evaluates a fragment's row count without writing.
type AudienceCounter interface {
	CountAudience(ctx context.Context, recipients audience.Fragment) (int, error)
}

// PresetRepository lists segment presets and the groups they point at.
type PresetRepository interface {
	// ListPresets returns active presets for the org; org rows replace
	// global rows with the same key.
	ListPresets(ctx context.Context, orgID string) ([]domain.SegmentPreset, error)

	// FindGroup looks a group up by internal or provider id. An empty ref
	// returns the org's most recently created group. Returns ErrNotFound
	// when nothing matches.
	FindGroup(ctx context.Context, orgID, ref string) (*GroupRef, error)
}

// GroupRef identifies a WhatsApp group for preset substitution.
type GroupRef struct {
	ID        string
	WAGroupID string
	Subject   string
}

// Dispatcher notifies the external worker about a new run.
type Dispatcher interface {
	Enabled() bool
	Dispatch(ctx context.Context, p dispatch.Payload) error
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name     *string
	Segment  *domain.Segment
	Message  *domain.MessageConfig
	Throttle *domain.ThrottlePatch
	Status   *domain.CampaignStatus
}
