package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/service/campaign"
)

// RunRepo implements campaign.RunRepository.
type RunRepo struct{ db *sql.DB }

// NewRunRepo creates a Postgres-backed run repository.
func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{db: db} }

const runColumns = `id, org_id, campaign_id, status, cfg, started_at, finished_at, created_at`

func scanRun(row rowScanner) (*domain.CampaignRun, error) {
	var (
		r   domain.CampaignRun
		cfg []byte
	)
	if err := row.Scan(&r.ID, &r.OrganizationID, &r.CampaignID, &r.Status, &cfg,
		&r.StartedAt, &r.FinishedAt, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cfg, &r.FrozenConfig); err != nil {
		return nil, fmt.Errorf("decode run cfg: %w", err)
	}
	return &r, nil
}

func (r *RunRepo) GetRun(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error) {
	if !validID(runID) || !validID(orgID) {
		return nil, campaign.ErrRunNotFound
	}
	run, err := scanRun(r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM comms_campaign_runs WHERE id = $1 AND org_id = $2`, runID, orgID))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// Transition applies next with a compare-and-set on the current status so
// concurrent callers cannot both win. Terminal states stamp finished_at.
func (r *RunRepo) Transition(ctx context.Context, orgID, runID string, from []domain.RunStatus, next domain.RunStatus) (*domain.CampaignRun, error) {
	if !validID(runID) || !validID(orgID) {
		return nil, campaign.ErrRunNotFound
	}
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	run, err := scanRun(r.db.QueryRowContext(ctx, `
		UPDATE comms_campaign_runs
		SET status = $1,
		    started_at = CASE WHEN $1 = 'running' THEN COALESCE(started_at, now()) ELSE started_at END,
		    finished_at = CASE WHEN $1 IN ('done', 'dead') THEN now() ELSE finished_at END
		WHERE id = $2 AND org_id = $3 AND status = ANY($4)
		RETURNING `+runColumns,
		string(next), runID, orgID, pq.Array(allowed)))
	if err == nil {
		return run, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("transition run: %w", err)
	}

	// Nothing matched: tell a missing run from one in the wrong state.
	if _, err := r.GetRun(ctx, orgID, runID); err != nil {
		return nil, err
	}
	return nil, campaign.ErrInvalidTransition
}
