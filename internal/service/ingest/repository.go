package ingest

import (
	"context"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/queue"
)

// CustomerRepository is the write side of the customer store.
// Implementations must be safe for concurrent use.
type CustomerRepository interface {
	// Get returns a customer by id. Returns ErrCustomerNotFound if absent.
	Get(ctx context.Context, id string) (*domain.Customer, error)

	// Upsert inserts or refreshes a customer keyed by email.
	Upsert(ctx context.Context, c *domain.Customer) error

	// BulkUpsert applies a chunk of customers transactionally and returns
	// the number applied.
	BulkUpsert(ctx context.Context, customers []domain.Customer) (int, error)

	// ApplyOrder records an order and folds it into the customer's spend,
	// visit, and last-visit counters. Returns ErrCustomerNotFound when the
	// order references nobody.
	ApplyOrder(ctx context.Context, o *domain.Order) error
}

// TaskQueue is the enqueue side of the work queue.
type TaskQueue interface {
	Enqueue(ctx context.Context, typ queue.TaskType, payload interface{}) (string, error)
}
