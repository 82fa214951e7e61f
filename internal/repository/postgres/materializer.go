package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/wa-outreach/internal/audience"
	"github.com/ignite/wa-outreach/internal/domain"
)

// Materializer creates runs and their targets in a single transaction.
// It implements campaign.Materializer and campaign.AudienceCounter.
type Materializer struct {
	db                   *sql.DB
	failpointAfterInsert func() error
}

// MaterializerOption configures a Materializer.
type MaterializerOption func(*Materializer)

// FailpointAfterInsert injects fn between the target insert and the run's
// transition to running. A non-nil return aborts the transaction. Tests
// use it to prove a failed launch leaves nothing behind.
func FailpointAfterInsert(fn func() error) MaterializerOption {
	return func(m *Materializer) { m.failpointAfterInsert = fn }
}

// NewMaterializer creates a Postgres-backed materializer.
func NewMaterializer(db *sql.DB, opts ...MaterializerOption) *Materializer {
	m := &Materializer{db: db}
	for _, o := range opts {
		o(m)
	}
	return m
}

// targetInsertArgs is the number of statement binds that precede the
// audience fragment's own binds in insertTargetsSQL.
const targetInsertArgs = 3

func insertTargetsSQL(recipients audience.Fragment) string {
	return `
		INSERT INTO comms_campaign_targets
			(id, run_id, org_id, campaign_id, contact_id, wa_user_id, phone_e164, variables, status, created_at, updated_at)
		SELECT gen_random_uuid(), $1, $2, $3,
		       a.contact_id, a.wa_user_id, a.phone_e164, COALESCE(a.variables, '{}'::jsonb),
		       'queued', now(), now()
		FROM (` + recipients.SQL + `) a
		WHERE a.wa_user_id IS NOT NULL OR a.contact_id IS NOT NULL
		ON CONFLICT DO NOTHING`
}

// MaterializeAndRun inserts a scheduled run with cfg frozen, inserts one
// queued target per distinct recipient of the fragment, flips the run to
// running and marks the campaign running, all in one transaction. On any
// error the transaction is rolled back and nothing is visible.
func (m *Materializer) MaterializeAndRun(ctx context.Context, c *domain.Campaign, recipients audience.Fragment, cfg domain.ThrottleConfig) (*domain.MaterializeResult, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode run cfg: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var runID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO comms_campaign_runs (org_id, campaign_id, status, cfg, created_at)
		VALUES ($1, $2, 'scheduled', $3, now())
		RETURNING id
	`, c.OrganizationID, c.ID, cfgJSON).Scan(&runID)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	frag := recipients.Shift(targetInsertArgs)
	args := append([]interface{}{runID, c.OrganizationID, c.ID}, frag.Args...)
	res, err := tx.ExecContext(ctx, insertTargetsSQL(frag), args...)
	if err != nil {
		return nil, fmt.Errorf("insert targets: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("count targets: %w", err)
	}

	if m.failpointAfterInsert != nil {
		if err := m.failpointAfterInsert(); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE comms_campaign_runs SET status = 'running', started_at = now()
		WHERE id = $1
	`, runID); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE comms_campaigns SET status = 'running', updated_at = now()
		WHERE id = $1 AND org_id = $2 AND status <> 'archived'
	`, c.ID, c.OrganizationID); err != nil {
		return nil, fmt.Errorf("mark campaign running: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run: %w", err)
	}
	return &domain.MaterializeResult{RunID: runID, Inserted: int(inserted)}, nil
}

// CountAudience evaluates the fragment as a count without writing.
func (m *Materializer) CountAudience(ctx context.Context, recipients audience.Fragment) (int, error) {
	q := recipients.Count()
	var n int
	if err := m.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audience: %w", err)
	}
	return n, nil
}
