package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/service/campaign"
)

// CommLogRepo persists per-recipient communication logs.
type CommLogRepo struct{ db *sql.DB }

// NewCommLogRepo creates a Postgres-backed communication log repository.
func NewCommLogRepo(db *sql.DB) *CommLogRepo { return &CommLogRepo{db: db} }

// BulkInsert writes one PENDING log row per recipient in a single
// transaction. Every row already carries its vendor delivery id.
func (r *CommLogRepo) BulkInsert(ctx context.Context, logs []domain.CommunicationLog) error {
	if len(logs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin log insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO crm_communication_logs
			(id, campaign_id, customer_id, customer_name, customer_email,
			 message, delivery_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`)
	if err != nil {
		return fmt.Errorf("prepare log insert: %w", err)
	}
	defer stmt.Close()

	for i := range logs {
		l := &logs[i]
		if _, err := stmt.ExecContext(ctx, l.ID, l.CampaignID, l.CustomerID,
			l.CustomerName, l.CustomerEmail, l.Message, l.DeliveryID, l.Status); err != nil {
			return fmt.Errorf("insert log %s: %w", l.DeliveryID, err)
		}
	}
	return tx.Commit()
}

// MarkDelivered stamps each receipt's log row with its terminal status and
// timestamp in a single statement, and returns one outcome per row updated.
// Unknown delivery ids match nothing and produce no outcome.
func (r *CommLogRepo) MarkDelivered(ctx context.Context, receipts []domain.DeliveryReceipt) ([]domain.DeliveryOutcome, error) {
	if len(receipts) == 0 {
		return nil, nil
	}
	ids := make([]string, len(receipts))
	statuses := make([]string, len(receipts))
	times := make([]time.Time, len(receipts))
	for i, rc := range receipts {
		ids[i] = rc.DeliveryID
		statuses[i] = string(rc.Status)
		times[i] = rc.Timestamp
	}

	rows, err := r.db.QueryContext(ctx, `
		UPDATE crm_communication_logs l
		SET status = u.status, sent_at = u.sent_at
		FROM unnest($1::text[], $2::text[], $3::timestamptz[]) AS u(delivery_id, status, sent_at)
		WHERE l.delivery_id = u.delivery_id
		RETURNING l.campaign_id, l.status
	`, pq.Array(ids), pq.Array(statuses), pq.Array(times))
	if err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryOutcome
	for rows.Next() {
		var o domain.DeliveryOutcome
		if err := rows.Scan(&o.CampaignID, &o.Status); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListByCampaign returns a campaign's logs newest first.
func (r *CommLogRepo) ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]domain.CommunicationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, customer_id, customer_name, customer_email,
		       message, delivery_id, status, sent_at, created_at
		FROM crm_communication_logs
		WHERE campaign_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []domain.CommunicationLog
	for rows.Next() {
		var l domain.CommunicationLog
		var sentAt sql.NullTime
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.CustomerID, &l.CustomerName,
			&l.CustomerEmail, &l.Message, &l.DeliveryID, &l.Status, &sentAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if sentAt.Valid {
			t := sentAt.Time
			l.SentAt = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// StatusDistribution counts a campaign's logs per delivery status.
func (r *CommLogRepo) StatusDistribution(ctx context.Context, campaignID string) (map[domain.DeliveryStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM crm_communication_logs
		WHERE campaign_id = $1
		GROUP BY status
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("status distribution: %w", err)
	}
	defer rows.Close()

	dist := make(map[domain.DeliveryStatus]int)
	for rows.Next() {
		var status domain.DeliveryStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		dist[status] = count
	}
	return dist, rows.Err()
}

// HourlyTrend buckets a campaign's resolved deliveries by hour of sent_at.
func (r *CommLogRepo) HourlyTrend(ctx context.Context, campaignID string) ([]campaign.HourlyPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date_trunc('hour', sent_at) AS bucket,
		       COUNT(*) FILTER (WHERE status = 'SENT'),
		       COUNT(*) FILTER (WHERE status = 'FAILED')
		FROM crm_communication_logs
		WHERE campaign_id = $1 AND sent_at IS NOT NULL
		GROUP BY bucket
		ORDER BY bucket
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("hourly trend: %w", err)
	}
	defer rows.Close()

	var out []campaign.HourlyPoint
	for rows.Next() {
		var p campaign.HourlyPoint
		if err := rows.Scan(&p.Hour, &p.Sent, &p.Failed); err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
