package campaign

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/wa-outreach/internal/audience"
	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/message"
)

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repositories are.
type Service struct {
	repo       Repository
	runs       RunRepository
	mat        Materializer
	counter    AudienceCounter
	presets    PresetRepository
	dispatcher Dispatcher
	renderer   *message.Renderer
	defaults   domain.ThrottleConfig
}

// Option configures optional collaborators of the Service.
type Option func(*Service)

// WithDispatcher enables the post-commit dispatch trigger.
func WithDispatcher(d Dispatcher) Option { return func(s *Service) { s.dispatcher = d } }

// WithPresets enables Presets.
func WithPresets(p PresetRepository) Option { return func(s *Service) { s.presets = p } }

// WithAudienceCounter enables Estimate.
func WithAudienceCounter(c AudienceCounter) Option { return func(s *Service) { s.counter = c } }

// WithThrottleDefaults replaces the built-in throttle defaults.
func WithThrottleDefaults(t domain.ThrottleConfig) Option {
	return func(s *Service) { s.defaults = t }
}

// WithRenderer shares a message renderer (and its template cache).
func WithRenderer(r *message.Renderer) Option { return func(s *Service) { s.renderer = r } }

// NewService creates a campaign service backed by the given repositories.
func NewService(repo Repository, runs RunRepository, mat Materializer, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		runs:     runs,
		mat:      mat,
		defaults: domain.DefaultThrottle(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.renderer == nil {
		s.renderer = message.NewRenderer()
	}
	return s
}

// ThrottleDefaults returns the defaults new runs fall back to.
func (s *Service) ThrottleDefaults() domain.ThrottleConfig { return s.defaults }

// CreateInput holds the fields for creating a new campaign. Segment may be
// given in either stored shape.
type CreateInput struct {
	Name      string          `json:"name"`
	Channel   string          `json:"channel"`
	Segment   *domain.Segment `json:"segment"`
	CreatedBy string          `json:"created_by"`
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, orgID string, input CreateInput) (*domain.Campaign, error) {
	c := &domain.Campaign{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Name:           strings.TrimSpace(input.Name),
		Channel:        strings.TrimSpace(input.Channel),
		Status:         domain.CampaignDraft,
		CreatedBy:      input.CreatedBy,
	}
	if c.Name == "" {
		c.Name = domain.DefaultCampaignName
	}
	if c.Channel == "" {
		c.Channel = domain.DefaultChannel
	}
	if input.Segment != nil {
		if err := s.validateSegment(*input.Segment); err != nil {
			return nil, err
		}
		c.Segment = *input.Segment
	}

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, persistence("create campaign", err)
	}
	c.ID = id
	return c, nil
}

func (s *Service) validateSegment(seg domain.Segment) error {
	if err := seg.Audience.Validate(); err != nil {
		return err
	}
	if seg.Throttle != nil {
		return seg.Throttle.Apply(s.defaults).Validate()
	}
	return nil
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, orgID, id string) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return nil, persistence("get campaign", err)
	}
	return c, nil
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, orgID string, f ListFilter) ([]domain.Campaign, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	out, total, err := s.repo.List(ctx, orgID, f)
	if err != nil {
		return nil, 0, persistence("list campaigns", err)
	}
	return out, total, nil
}

// editable loads a campaign that may still be changed.
func (s *Service) editable(ctx context.Context, orgID, id string) (*domain.Campaign, error) {
	c, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if c.IsArchived() {
		return nil, ErrArchived
	}
	return c, nil
}

// UpdateAudience replaces the campaign's audience. The segment's throttle,
// if any, is kept, and the segment is stored in the nested shape.
func (s *Service) UpdateAudience(ctx context.Context, orgID, id string, spec domain.AudienceSpec) (*domain.Campaign, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	c, err := s.editable(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	c.Segment.Audience = spec
	if err := s.repo.Update(ctx, orgID, id, UpdateFields{Segment: &c.Segment}); err != nil {
		return nil, persistence("update audience", err)
	}
	return c, nil
}

// UpdateMessage validates and stores the campaign's message.
func (s *Service) UpdateMessage(ctx context.Context, orgID, id string, m domain.MessageConfig) (*domain.Campaign, error) {
	m.Body = strings.TrimSpace(m.Body)
	m.MediaURL = strings.TrimSpace(m.MediaURL)
	if err := s.renderer.Validate(m); err != nil {
		return nil, err
	}
	c, err := s.editable(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	c.Message = &m
	if err := s.repo.Update(ctx, orgID, id, UpdateFields{Message: &m}); err != nil {
		return nil, persistence("update message", err)
	}
	return c, nil
}

// ScheduleInput is a partial throttle plus optional safeguards.
type ScheduleInput struct {
	Throttle   *domain.ThrottlePatch `json:"throttle"`
	Safeguards *domain.Safeguards    `json:"safeguards"`
}

// Schedule merges the input with the configured defaults, stores the
// result as the campaign's throttle and marks the campaign scheduled.
func (s *Service) Schedule(ctx context.Context, orgID, id string, in ScheduleInput) (domain.ThrottleConfig, error) {
	cfg := in.Throttle.Apply(s.defaults)
	if in.Safeguards != nil {
		cfg.Safeguards = *in.Safeguards
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if _, err := s.editable(ctx, orgID, id); err != nil {
		return cfg, err
	}
	status := domain.CampaignScheduled
	if err := s.repo.Update(ctx, orgID, id, UpdateFields{Throttle: domain.PatchFrom(cfg), Status: &status}); err != nil {
		return cfg, persistence("schedule campaign", err)
	}
	return cfg, nil
}

// Estimate counts the recipients the campaign's audience currently
// resolves to. Nothing is written.
func (s *Service) Estimate(ctx context.Context, orgID, id string) (int, error) {
	if s.counter == nil {
		return 0, errors.New("estimate: no audience counter configured")
	}
	c, err := s.Get(ctx, orgID, id)
	if err != nil {
		return 0, err
	}
	frag, err := audience.Resolve(orgID, c.Segment.Audience)
	if err != nil {
		return 0, err
	}
	n, err := s.counter.CountAudience(ctx, frag)
	if err != nil {
		return 0, persistence("estimate audience", err)
	}
	return n, nil
}

// Archive retires a campaign. Archived campaigns cannot be edited or launched.
func (s *Service) Archive(ctx context.Context, orgID, id string) error {
	status := domain.CampaignArchived
	if err := s.repo.Update(ctx, orgID, id, UpdateFields{Status: &status}); err != nil {
		return persistence("archive campaign", err)
	}
	return nil
}

// Templates lists the message templates by type.
func (s *Service) Templates() map[domain.MessageType][]message.Template {
	return s.renderer.Catalog().Grouped()
}

// Preview renders the campaign message for a sample recipient.
func (s *Service) Preview(ctx context.Context, orgID, id string, vars map[string]any) (*message.Preview, error) {
	c, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if c.Message == nil {
		return nil, ErrMessageRequired
	}
	return s.renderer.Render(*c.Message, vars)
}
