package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/service/campaign"
)

// PresetRepo implements campaign.PresetRepository.
type PresetRepo struct{ db *sql.DB }

// NewPresetRepo creates a Postgres-backed preset repository.
func NewPresetRepo(db *sql.DB) *PresetRepo { return &PresetRepo{db: db} }

// ListPresets returns active presets; an org row hides the global row with
// the same key.
func (r *PresetRepo) ListPresets(ctx context.Context, orgID string) ([]domain.SegmentPreset, error) {
	if !validID(orgID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (key) key, label, params
		FROM comms_segment_presets
		WHERE is_active AND (org_id = $1 OR org_id IS NULL)
		ORDER BY key, org_id NULLS LAST
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	var out []domain.SegmentPreset
	for rows.Next() {
		var (
			p      domain.SegmentPreset
			params []byte
		)
		if err := rows.Scan(&p.Key, &p.Label, &params); err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		seg, err := domain.ParseSegment(params)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", p.Key, err)
		}
		p.Audience = seg.Audience
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindGroup resolves ref by internal or provider id, or returns the org's
// newest group when ref is empty.
func (r *PresetRepo) FindGroup(ctx context.Context, orgID, ref string) (*campaign.GroupRef, error) {
	if !validID(orgID) {
		return nil, campaign.ErrNotFound
	}
	q := `SELECT id, COALESCE(wa_group_id, ''), COALESCE(subject, name, '') FROM wpp_groups WHERE org_id = $1`
	args := []interface{}{orgID}
	if ref = strings.TrimSpace(ref); ref != "" {
		q += ` AND (id::text = $2 OR wa_group_id = $2) LIMIT 1`
		args = append(args, ref)
	} else {
		q += ` ORDER BY created_at DESC LIMIT 1`
	}

	var g campaign.GroupRef
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&g.ID, &g.WAGroupID, &g.Subject)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &g, nil
}
