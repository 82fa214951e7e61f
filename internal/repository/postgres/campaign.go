package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, org_id, name, channel, segment, message, throttle,
	status, COALESCE(created_by, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	var (
		c                          domain.Campaign
		segment, message, throttle []byte
	)
	if err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Channel, &segment, &message, &throttle,
		&c.Status, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	seg, err := domain.ParseSegment(segment)
	if err != nil {
		return nil, err
	}
	c.Segment = seg
	if len(message) > 0 && string(message) != "null" {
		c.Message = &domain.MessageConfig{}
		if err := json.Unmarshal(message, c.Message); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
	}
	if len(throttle) > 0 && string(throttle) != "null" {
		c.Throttle = &domain.ThrottlePatch{}
		if err := json.Unmarshal(throttle, c.Throttle); err != nil {
			return nil, fmt.Errorf("decode throttle: %w", err)
		}
	}
	return &c, nil
}

// validID rejects ids Postgres would refuse to cast to uuid, so that a
// malformed id reads as not found instead of a server error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *CampaignRepo) Get(ctx context.Context, orgID, id string) (*domain.Campaign, error) {
	if !validID(id) || !validID(orgID) {
		return nil, campaign.ErrNotFound
	}
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM comms_campaigns WHERE id = $1 AND org_id = $2`, id, orgID))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, orgID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	if !validID(orgID) {
		return nil, 0, nil
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE org_id = $1`
	args := []interface{}{orgID}
	idx := 2
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, "%"+s+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comms_campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM comms_campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	segment, err := json.Marshal(c.Segment)
	if err != nil {
		return "", fmt.Errorf("encode segment: %w", err)
	}
	message, err := nullableJSON(c.Message)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	throttle, err := nullableJSON(c.Throttle)
	if err != nil {
		return "", fmt.Errorf("encode throttle: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO comms_campaigns
			(id, org_id, name, channel, segment, message, throttle, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), now(), now())
	`, c.ID, c.OrganizationID, c.Name, c.Channel, segment, message, throttle, c.Status, c.CreatedBy)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

func (r *CampaignRepo) Update(ctx context.Context, orgID, id string, u campaign.UpdateFields) error {
	if !validID(id) || !validID(orgID) {
		return campaign.ErrNotFound
	}
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}
	addJSON := func(col string, val interface{}) error {
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encode %s: %w", col, err)
		}
		add(col, b)
		return nil
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Segment != nil {
		if err := addJSON("segment", u.Segment); err != nil {
			return err
		}
	}
	if u.Message != nil {
		if err := addJSON("message", u.Message); err != nil {
			return err
		}
	}
	if u.Throttle != nil {
		if err := addJSON("throttle", u.Throttle); err != nil {
			return err
		}
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}

	if len(sets) == 0 {
		return nil
	}

	q := fmt.Sprintf("UPDATE comms_campaigns SET %s, updated_at = now() WHERE id = $%d AND org_id = $%d",
		strings.Join(sets, ", "), idx, idx+1)
	args = append(args, id, orgID)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// nullableJSON encodes v, mapping a nil pointer to SQL NULL.
func nullableJSON(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *domain.MessageConfig:
		if t == nil {
			return nil, nil
		}
	case *domain.ThrottlePatch:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
