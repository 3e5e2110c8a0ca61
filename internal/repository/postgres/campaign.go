package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, owner_id, name, segment_rule, message, audience_size,
	       status, stats_sent, stats_failed, stats_pending, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.SegmentRule, &c.Message, &c.AudienceSize,
		&c.Status, &c.Stats.Sent, &c.Stats.Failed, &c.Stats.Pending,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crm_campaigns
			(id, owner_id, name, segment_rule, message, audience_size,
			 status, stats_sent, stats_failed, stats_pending, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`, c.ID, c.OwnerID, c.Name, c.SegmentRule, c.Message, c.AudienceSize,
		c.Status, c.Stats.Sent, c.Stats.Failed, c.Stats.Pending)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM crm_campaigns
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// ListByOwner returns the owner's campaigns newest first.
func (r *CampaignRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Campaign, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crm_campaigns WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM crm_campaigns
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
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

func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_campaigns SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// ResetStats zeroes sent and failed and sets pending to the audience size,
// the starting state of a dispatch run.
func (r *CampaignRepo) ResetStats(ctx context.Context, id string, pending int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_campaigns SET
			stats_sent    = 0,
			stats_failed  = 0,
			stats_pending = $1,
			updated_at    = NOW()
		WHERE id = $2
	`, pending, id)
	if err != nil {
		return fmt.Errorf("reset campaign stats: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// IncrementStats applies one batched delta to a campaign's counters in a
// single atomic statement. Pending is clamped at zero.
func (r *CampaignRepo) IncrementStats(ctx context.Context, id string, sent, failed, pending int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_campaigns SET
			stats_sent    = stats_sent + $1,
			stats_failed  = stats_failed + $2,
			stats_pending = GREATEST(0, stats_pending + $3),
			updated_at    = NOW()
		WHERE id = $4
	`, sent, failed, pending, id)
	if err != nil {
		return fmt.Errorf("increment campaign stats: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}
