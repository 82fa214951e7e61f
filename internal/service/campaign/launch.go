package campaign

import (
	"context"

	"github.com/ignite/wa-outreach/internal/audience"
	"github.com/ignite/wa-outreach/internal/dispatch"
	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/pkg/logger"
)

// LaunchResult reports a launch. Dispatched is false when no dispatcher is
// configured or the trigger failed; the run exists either way.
type LaunchResult struct {
	RunID      string `json:"run_id"`
	Inserted   int    `json:"inserted"`
	Dispatched bool   `json:"dispatched"`
}

// Launch materializes a new run of the campaign and triggers the
// dispatcher. Validation failures return before any write. A second launch
// creates a second run; targets are deduplicated within each run.
func (s *Service) Launch(ctx context.Context, orgID, id string) (*LaunchResult, error) {
	c, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if c.IsArchived() {
		return nil, ErrArchived
	}
	if c.Message == nil {
		return nil, ErrMessageRequired
	}
	if err := s.renderer.Validate(*c.Message); err != nil {
		return nil, err
	}

	// The stored throttle was validated when authored; freeze it as-is.
	cfg := c.EffectiveThrottle(s.defaults)
	recipients, err := audience.Resolve(orgID, c.Segment.Audience)
	if err != nil {
		return nil, err
	}

	res, err := s.mat.MaterializeAndRun(ctx, c, recipients, cfg)
	if err != nil {
		return nil, persistence("materialize run", err)
	}
	logger.Info("campaign: run materialized",
		"org_id", orgID, "campaign_id", c.ID, "run_id", res.RunID, "inserted", res.Inserted)

	out := &LaunchResult{RunID: res.RunID, Inserted: res.Inserted}
	if s.dispatcher == nil || !s.dispatcher.Enabled() {
		return out, nil
	}

	msg := s.renderer.Resolve(*c.Message)
	err = s.dispatcher.Dispatch(ctx, dispatch.Payload{
		OrgID:      orgID,
		CampaignID: c.ID,
		RunID:      res.RunID,
		Name:       c.Name,
		Channel:    c.Channel,
		Audience:   c.Segment.Audience,
		Message:    &msg,
		Options:    cfg,
	})
	if err != nil {
		logger.Error("campaign: dispatch failed", "run_id", res.RunID, "error", err)
		return out, nil
	}
	out.Dispatched = true
	return out, nil
}

// GetRun returns a run scoped to the org.
func (s *Service) GetRun(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error) {
	r, err := s.runs.GetRun(ctx, orgID, runID)
	if err != nil {
		return nil, persistence("get run", err)
	}
	return r, nil
}

// PauseRun stops a running run from being drained.
func (s *Service) PauseRun(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error) {
	return s.transition(ctx, orgID, runID, domain.RunPaused)
}

// ResumeRun puts a paused run back to running.
func (s *Service) ResumeRun(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error) {
	return s.transition(ctx, orgID, runID, domain.RunRunning)
}

// CompleteRun records the dispatcher's completion signal.
func (s *Service) CompleteRun(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error) {
	return s.transition(ctx, orgID, runID, domain.RunDone)
}

// FailRun abandons a run from any non-terminal state.
func (s *Service) FailRun(ctx context.Context, orgID, runID, reason string) (*domain.CampaignRun, error) {
	r, err := s.transition(ctx, orgID, runID, domain.RunDead)
	if err == nil {
		logger.Warn("campaign: run failed", "org_id", orgID, "run_id", runID, "reason", reason)
	}
	return r, err
}

func (s *Service) transition(ctx context.Context, orgID, runID string, next domain.RunStatus) (*domain.CampaignRun, error) {
	r, err := s.runs.Transition(ctx, orgID, runID, domain.AllowedFrom(next), next)
	if err != nil {
		return nil, persistence("transition run", err)
	}
	return r, nil
}
