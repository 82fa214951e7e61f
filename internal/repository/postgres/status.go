package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/wa-outreach/internal/domain"
)

// StatusRepo implements status.Repository. Reads take no locks.
type StatusRepo struct{ db *sql.DB }

// NewStatusRepo creates a Postgres-backed status repository.
func NewStatusRepo(db *sql.DB) *StatusRepo { return &StatusRepo{db: db} }

func statusStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func (r *StatusRepo) ActiveRuns(ctx context.Context, orgID string) ([]domain.RunSummary, error) {
	if !validID(orgID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.campaign_id, r.org_id, c.name, c.channel, r.status,
		       COUNT(t.id) FILTER (WHERE t.status = 'queued')  AS queued,
		       COUNT(t.id) FILTER (WHERE t.status = 'sending') AS sending,
		       COUNT(t.id) FILTER (WHERE t.status = ANY($3))   AS sent_or_better,
		       COUNT(t.id) FILTER (WHERE t.status = 'failed')  AS failed,
		       ev.last_event_at,
		       GREATEST(COALESCE(r.started_at, r.created_at), COALESCE(ev.last_event_at, r.created_at)) AS updated_at
		FROM comms_campaign_runs r
		JOIN comms_campaigns c ON c.id = r.campaign_id
		LEFT JOIN comms_campaign_targets t ON t.run_id = r.id
		LEFT JOIN LATERAL (
			SELECT max(e.created_at) AS last_event_at
			FROM comms_campaign_events e
			WHERE e.run_id = r.id
		) ev ON true
		WHERE r.org_id = $1 AND r.status = ANY($2)
		GROUP BY r.id, c.name, c.channel, ev.last_event_at
		ORDER BY ev.last_event_at DESC NULLS LAST, c.name ASC
	`, orgID, pq.Array(statusStrings(domain.ActiveRunStatuses)), pq.Array(statusStrings(domain.SentOrBetterStatuses)))
	if err != nil {
		return nil, fmt.Errorf("active runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		var s domain.RunSummary
		if err := rows.Scan(&s.RunID, &s.CampaignID, &s.OrganizationID, &s.Name, &s.Channel, &s.RawStatus,
			&s.Queued, &s.Sending, &s.SentOrBetter, &s.Failed, &s.LastEventAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// recentRecipientsSQL unions the latest sent events with the oldest queued
// targets. Queued rows carry a NULL event time so they sort after every
// send; ord keeps them oldest first.
const recentRecipientsSQL = `
	WITH sent AS (
		SELECT t.id AS target_id, t.contact_id,
		       COALESCE(NULLIF(ct.name, ''), t.variables->>'first_name', t.variables->>'name', '') AS display_name,
		       COALESCE(t.wa_user_id, '') AS wa_user_id, t.phone_e164,
		       'event' AS status_domain, e.kind AS status_code,
		       e.occurred_at AS event_at,
		       0::bigint AS ord
		FROM comms_campaign_events e
		JOIN comms_campaign_targets t ON t.id = e.target_id
		LEFT JOIN crm_contacts ct ON ct.id = t.contact_id
		WHERE e.run_id = $1 AND t.org_id = $2 AND e.kind = 'sent'
		ORDER BY e.occurred_at DESC, e.id DESC
		LIMIT $3
	), queued AS (
		SELECT t.id AS target_id, t.contact_id,
		       COALESCE(NULLIF(ct.name, ''), t.variables->>'first_name', t.variables->>'name', '') AS display_name,
		       COALESCE(t.wa_user_id, '') AS wa_user_id, t.phone_e164,
		       'target' AS status_domain, t.status AS status_code,
		       NULL::timestamptz AS event_at,
		       row_number() OVER (ORDER BY t.created_at, t.id) AS ord
		FROM comms_campaign_targets t
		LEFT JOIN crm_contacts ct ON ct.id = t.contact_id
		WHERE t.run_id = $1 AND t.org_id = $2 AND t.status = 'queued'
		ORDER BY t.created_at, t.id
		LIMIT $3
	)
	SELECT target_id, contact_id, display_name, wa_user_id, phone_e164, status_domain, status_code, event_at
	FROM (SELECT * FROM sent UNION ALL SELECT * FROM queued) x
	ORDER BY event_at DESC NULLS LAST, ord
	LIMIT $3`

func (r *StatusRepo) RecentRecipients(ctx context.Context, orgID, runID string, limit int) ([]domain.RecipientRow, error) {
	if !validID(orgID) || !validID(runID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, recentRecipientsSQL, runID, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.RecipientRow
	for rows.Next() {
		var (
			row     domain.RecipientRow
			contact sql.NullString
			phone   sql.NullString
			at      sql.NullTime
		)
		if err := rows.Scan(&row.TargetID, &contact, &row.DisplayName, &row.RecipientHandle, &phone,
			&row.StatusDomain, &row.StatusCode, &at); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if contact.Valid {
			row.ContactID = &contact.String
		}
		if phone.Valid {
			row.PhoneE164 = &phone.String
		}
		if at.Valid {
			row.EventAt = &at.Time
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
