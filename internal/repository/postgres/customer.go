// Package postgres implements the service repository interfaces against
// PostgreSQL using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/segment"
	"github.com/ignite/crm-engine/internal/service/ingest"
)

// CustomerRepo implements ingest.CustomerRepository and the audience query
// side of campaign dispatch against PostgreSQL.
type CustomerRepo struct{ db *sql.DB }

// NewCustomerRepo creates a Postgres-backed customer repository.
func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{db: db} }

func (r *CustomerRepo) Get(ctx context.Context, id string) (*domain.Customer, error) {
	c := &domain.Customer{}
	var lastVisit sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, total_spends, visits, last_visit, tags, created_at, updated_at
		FROM crm_customers
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.TotalSpends, &c.Visits,
		&lastVisit, pq.Array(&c.Tags), &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ingest.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if lastVisit.Valid {
		t := lastVisit.Time
		c.LastVisit = &t
	}
	return c, nil
}

// Upsert inserts a customer or, when the id already exists, replaces the
// submitted profile fields with the new payload.
func (r *CustomerRepo) Upsert(ctx context.Context, c *domain.Customer) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crm_customers
			(id, name, email, total_spends, visits, last_visit, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name         = EXCLUDED.name,
			email        = EXCLUDED.email,
			total_spends = EXCLUDED.total_spends,
			visits       = EXCLUDED.visits,
			last_visit   = EXCLUDED.last_visit,
			tags         = EXCLUDED.tags,
			updated_at   = NOW()
	`, c.ID, c.Name, c.Email, c.TotalSpends, c.Visits, c.LastVisit, pq.Array(c.Tags))
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

// BulkUpsert applies a chunk of customers in one transaction. Returns the
// number applied.
func (r *CustomerRepo) BulkUpsert(ctx context.Context, customers []domain.Customer) (int, error) {
	if len(customers) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO crm_customers
			(id, name, email, total_spends, visits, last_visit, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name         = EXCLUDED.name,
			email        = EXCLUDED.email,
			total_spends = EXCLUDED.total_spends,
			visits       = EXCLUDED.visits,
			last_visit   = EXCLUDED.last_visit,
			tags         = EXCLUDED.tags,
			updated_at   = NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare bulk upsert: %w", err)
	}
	defer stmt.Close()

	n := 0
	for i := range customers {
		c := &customers[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.Email,
			c.TotalSpends, c.Visits, c.LastVisit, pq.Array(c.Tags)); err != nil {
			return 0, fmt.Errorf("bulk upsert customer %s: %w", c.Email, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk upsert: %w", err)
	}
	return n, nil
}

// ApplyOrder records an order and folds it into the customer's counters.
// Spend is clamped at zero so a refund larger than the running total cannot
// drive it negative.
func (r *CustomerRepo) ApplyOrder(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply order: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crm_orders (id, customer_id, amount, order_date, items, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, o.ID, o.CustomerID, o.Amount, o.Date, pq.Array(o.Items)); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE crm_customers SET
			total_spends = GREATEST(0, total_spends + $1),
			visits       = visits + 1,
			last_visit   = NOW(),
			updated_at   = NOW()
		WHERE id = $2
	`, o.Amount, o.CustomerID)
	if err != nil {
		return fmt.Errorf("update customer counters: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ingest.ErrCustomerNotFound
	}
	return tx.Commit()
}

// CountBySegment returns the audience size for a compiled rule.
func (r *CustomerRepo) CountBySegment(ctx context.Context, rule *segment.CompiledRule) (int, error) {
	where, args := rule.WhereClause(1)
	var total int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM crm_customers WHERE %s`, where)
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count segment: %w", err)
	}
	return total, nil
}

// QueryBySegment streams the matching customers in stable order so a
// dispatcher can page through the audience.
func (r *CustomerRepo) QueryBySegment(ctx context.Context, rule *segment.CompiledRule, limit, offset int) ([]domain.Customer, error) {
	where, args := rule.WhereClause(1)
	idx := len(args) + 1
	q := fmt.Sprintf(`
		SELECT id, name, email, total_spends, visits, last_visit, tags, created_at, updated_at
		FROM crm_customers
		WHERE %s
		ORDER BY created_at, id
		LIMIT $%d OFFSET $%d
	`, where, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query segment: %w", err)
	}
	defer rows.Close()

	var out []domain.Customer
	for rows.Next() {
		var c domain.Customer
		var lastVisit sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.TotalSpends, &c.Visits,
			&lastVisit, pq.Array(&c.Tags), &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		if lastVisit.Valid {
			t := lastVisit.Time
			c.LastVisit = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
