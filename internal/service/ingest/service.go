// Package ingest implements asynchronous customer and order ingestion.
//
// The API side validates payloads and enqueues them; nothing is written to
// the store on the request path. The worker side applies dequeued tasks
// through the repository. Both halves live here so the validation rules and
// chunking policy stay in one place.
package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/queue"
)

// MaxBatchChunk caps how many customers ride in a single batch task.
// Larger submissions are split into sequential chunk tasks.
const MaxBatchChunk = 100

// Service validates ingestion payloads, enqueues them, and applies them.
type Service struct {
	repo  CustomerRepository
	tasks TaskQueue
}

// NewService creates an ingestion service.
func NewService(repo CustomerRepository, tasks TaskQueue) *Service {
	return &Service{repo: repo, tasks: tasks}
}

// QueueCustomer validates one customer and enqueues it for ingestion.
// Returns the task id.
func (s *Service) QueueCustomer(ctx context.Context, c domain.Customer) (string, error) {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return "", err
	}
	return s.tasks.Enqueue(ctx, queue.TaskIngestCustomer, queue.IngestCustomerPayload{Customer: c})
}

// QueueCustomerBatch validates a batch and enqueues it in chunks of at most
// MaxBatchChunk. Validation is all-or-nothing: one bad record rejects the
// whole submission before anything is enqueued. Returns one task id per
// chunk.
func (s *Service) QueueCustomerBatch(ctx context.Context, customers []domain.Customer) ([]string, error) {
	if len(customers) == 0 {
		return nil, ErrEmptyBatch
	}
	for i := range customers {
		customers[i].Normalize()
		if err := customers[i].Validate(); err != nil {
			return nil, fmt.Errorf("customer %d: %w", i, err)
		}
	}

	var taskIDs []string
	for start := 0; start < len(customers); start += MaxBatchChunk {
		end := start + MaxBatchChunk
		if end > len(customers) {
			end = len(customers)
		}
		id, err := s.tasks.Enqueue(ctx, queue.TaskBatchIngestCustomers,
			queue.BatchIngestCustomersPayload{Customers: customers[start:end]})
		if err != nil {
			return taskIDs, fmt.Errorf("enqueue chunk %d: %w", start/MaxBatchChunk, err)
		}
		taskIDs = append(taskIDs, id)
	}
	return taskIDs, nil
}

// QueueOrder validates one order and enqueues it for ingestion.
func (s *Service) QueueOrder(ctx context.Context, o domain.Order) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	return s.tasks.Enqueue(ctx, queue.TaskIngestOrder, queue.IngestOrderPayload{Order: o})
}

// GetCustomer returns a customer by id.
func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return s.repo.Get(ctx, id)
}

// ApplyCustomer upserts one dequeued customer.
func (s *Service) ApplyCustomer(ctx context.Context, c domain.Customer) error {
	c.Normalize()
	return s.repo.Upsert(ctx, &c)
}

// ApplyCustomerBatch upserts one dequeued chunk.
func (s *Service) ApplyCustomerBatch(ctx context.Context, customers []domain.Customer) (int, error) {
	for i := range customers {
		customers[i].Normalize()
	}
	n, err := s.repo.BulkUpsert(ctx, customers)
	if err != nil {
		return n, err
	}
	log.Printf("[ingest.Service] Applied batch of %d customers", n)
	return n, nil
}

// ApplyOrder records one dequeued order against its customer.
func (s *Service) ApplyOrder(ctx context.Context, o domain.Order) error {
	return s.repo.ApplyOrder(ctx, &o)
}
