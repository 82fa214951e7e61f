package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/ingest"
)

// InboxRepo implements ingest.Store.
type InboxRepo struct{ db *sql.DB }

// NewInboxRepo creates a Postgres-backed inbound event store.
func NewInboxRepo(db *sql.DB) *InboxRepo { return &InboxRepo{db: db} }

func (r *InboxRepo) Insert(ctx context.Context, ev *domain.InboundEvent) (bool, error) {
	if !validID(ev.OrgID) {
		return false, domain.Invalid("invalid_org_id", ev.OrgID)
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO comms_inbound_events (org_id, source, event_type, payload_hash, raw_json, received_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (payload_hash) DO NOTHING
		RETURNING id, received_at
	`, ev.OrgID, ev.Source, ev.EventType, ev.PayloadHash, ev.Raw).Scan(&ev.ID, &ev.ReceivedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert inbound event: %w", err)
	}
	return true, nil
}

func (r *InboxRepo) Pending(ctx context.Context, limit int) ([]domain.InboundEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_id, source, event_type, payload_hash, raw_json, received_at
		FROM comms_inbound_events
		WHERE processed_at IS NULL AND error IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending inbound events: %w", err)
	}
	defer rows.Close()

	var out []domain.InboundEvent
	for rows.Next() {
		var ev domain.InboundEvent
		if err := rows.Scan(&ev.ID, &ev.OrgID, &ev.Source, &ev.EventType, &ev.PayloadHash, &ev.Raw, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan inbound event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Project appends the event only if its target belongs to the run and
// org, then advances the target with a guarded update so that status never
// regresses, and closes the inbox row.
func (r *InboxRepo) Project(ctx context.Context, inboxID int64, orgID string, ev domain.DeliveryEvent) error {
	if !validID(ev.RunID) || !validID(ev.TargetID) || !validID(orgID) {
		return ingest.ErrUnknownTarget
	}
	next, ok := ev.Kind.TargetStatus()
	if !ok {
		return domain.Invalid("invalid_event_kind", string(ev.Kind))
	}
	meta := []byte(`{}`)
	if len(ev.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(ev.Meta); err != nil {
			return fmt.Errorf("encode event meta: %w", err)
		}
	}

	var occurredAt sql.NullTime
	if ev.OccurredAt != nil {
		occurredAt = sql.NullTime{Time: *ev.OccurredAt, Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO comms_campaign_events (run_id, target_id, kind, meta, occurred_at, created_at)
		SELECT $1, $2, $3, $4, COALESCE($6::timestamptz, now()), now()
		WHERE EXISTS (
			SELECT 1 FROM comms_campaign_targets
			WHERE id = $2 AND run_id = $1 AND org_id = $5
		)
	`, ev.RunID, ev.TargetID, string(ev.Kind), meta, orgID, occurredAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ingest.ErrUnknownTarget
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE comms_campaign_targets SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, string(next), ev.TargetID, pq.Array(statusStrings(domain.TargetAdvancesFrom(next)))); err != nil {
		return fmt.Errorf("advance target: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE comms_inbound_events SET processed_at = now() WHERE id = $1
	`, inboxID); err != nil {
		return fmt.Errorf("close inbound event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit projection: %w", err)
	}
	return nil
}

func (r *InboxRepo) MarkFailed(ctx context.Context, inboxID int64, reason string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE comms_inbound_events SET processed_at = now(), error = $2 WHERE id = $1
	`, inboxID, reason); err != nil {
		return fmt.Errorf("mark inbound event failed: %w", err)
	}
	return nil
}
