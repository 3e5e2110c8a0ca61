package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/queue"
	"github.com/ignite/crm-engine/internal/service/ingest"
)

// memCustomerRepo is an in-memory customer store keyed by id.
type memCustomerRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Customer
}

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{byID: make(map[string]*domain.Customer)}
}

func (m *memCustomerRepo) Get(_ context.Context, id string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, ingest.ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCustomerRepo) Upsert(_ context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = fmt.Sprintf("id-%d", len(m.byID)+1)
	}
	if existing, ok := m.byID[c.ID]; ok {
		existing.Name = c.Name
		existing.Email = c.Email
		existing.TotalSpends = c.TotalSpends
		existing.Visits = c.Visits
		existing.LastVisit = c.LastVisit
		existing.Tags = c.Tags
		return nil
	}
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *memCustomerRepo) BulkUpsert(ctx context.Context, customers []domain.Customer) (int, error) {
	for i := range customers {
		if err := m.Upsert(ctx, &customers[i]); err != nil {
			return i, err
		}
	}
	return len(customers), nil
}

func (m *memCustomerRepo) ApplyOrder(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[o.CustomerID]
	if !ok {
		return ingest.ErrCustomerNotFound
	}
	c.TotalSpends += o.Amount
	if c.TotalSpends < 0 {
		c.TotalSpends = 0
	}
	c.Visits++
	now := time.Now()
	c.LastVisit = &now
	return nil
}

// memQueue records enqueued payloads.
type memQueue struct {
	mu       sync.Mutex
	payloads []interface{}
	types    []queue.TaskType
}

func (m *memQueue) Enqueue(_ context.Context, typ queue.TaskType, payload interface{}) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, typ)
	m.payloads = append(m.payloads, payload)
	return fmt.Sprintf("task-%d", len(m.types)), nil
}

func TestQueueCustomerValidates(t *testing.T) {
	q := &memQueue{}
	svc := ingest.NewService(newMemCustomerRepo(), q)

	_, err := svc.QueueCustomer(context.Background(), domain.Customer{Name: "No Email"})
	if !errors.Is(err, domain.ErrMissingEmail) {
		t.Fatalf("expected ErrMissingEmail, got %v", err)
	}
	if len(q.types) != 0 {
		t.Fatal("invalid customer must not be enqueued")
	}

	id, err := svc.QueueCustomer(context.Background(), domain.Customer{Name: "Ok", Email: "OK@X.com"})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if id == "" {
		t.Fatal("expected task id")
	}

	p := q.payloads[0].(queue.IngestCustomerPayload)
	if p.Customer.Email != "ok@x.com" {
		t.Fatalf("expected normalized email, got %q", p.Customer.Email)
	}
}

func TestQueueCustomerBatchChunks(t *testing.T) {
	q := &memQueue{}
	svc := ingest.NewService(newMemCustomerRepo(), q)

	customers := make([]domain.Customer, 250)
	for i := range customers {
		customers[i] = domain.Customer{
			Name:  fmt.Sprintf("C%d", i),
			Email: fmt.Sprintf("c%d@x.com", i),
		}
	}

	ids, err := svc.QueueCustomerBatch(context.Background(), customers)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	// 250 customers split 100/100/50.
	if len(ids) != 3 {
		t.Fatalf("expected 3 chunk tasks, got %d", len(ids))
	}
	sizes := []int{}
	for _, p := range q.payloads {
		sizes = append(sizes, len(p.(queue.BatchIngestCustomersPayload).Customers))
	}
	if sizes[0] != 100 || sizes[1] != 100 || sizes[2] != 50 {
		t.Fatalf("unexpected chunk sizes: %v", sizes)
	}
}

func TestQueueCustomerBatchRejectsAllOnOneBadRecord(t *testing.T) {
	q := &memQueue{}
	svc := ingest.NewService(newMemCustomerRepo(), q)

	customers := []domain.Customer{
		{Name: "Ok", Email: "ok@x.com"},
		{Name: "Bad"},
	}
	if _, err := svc.QueueCustomerBatch(context.Background(), customers); err == nil {
		t.Fatal("expected validation error")
	}
	if len(q.types) != 0 {
		t.Fatal("nothing may be enqueued when one record is invalid")
	}
}

func TestQueueCustomerBatchEmpty(t *testing.T) {
	svc := ingest.NewService(newMemCustomerRepo(), &memQueue{})

	_, err := svc.QueueCustomerBatch(context.Background(), nil)
	if !errors.Is(err, ingest.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestQueueOrderValidates(t *testing.T) {
	q := &memQueue{}
	svc := ingest.NewService(newMemCustomerRepo(), q)

	_, err := svc.QueueOrder(context.Background(), domain.Order{Amount: 10})
	if !errors.Is(err, domain.ErrMissingCustomerID) {
		t.Fatalf("expected ErrMissingCustomerID, got %v", err)
	}

	if _, err := svc.QueueOrder(context.Background(), domain.Order{
		CustomerID: "c1", Amount: 99.5, Date: time.Now(),
	}); err != nil {
		t.Fatalf("queue order: %v", err)
	}
	if q.types[0] != queue.TaskIngestOrder {
		t.Fatalf("expected ingest-order task, got %v", q.types[0])
	}
}

func TestApplyOrderUpdatesCounters(t *testing.T) {
	repo := newMemCustomerRepo()
	svc := ingest.NewService(repo, &memQueue{})
	ctx := context.Background()

	if err := svc.ApplyCustomer(ctx, domain.Customer{ID: "c1", Name: "A", Email: "a@x.com"}); err != nil {
		t.Fatalf("apply customer: %v", err)
	}

	// A backdated order still counts the visit as happening now.
	before := time.Now()
	when := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	err := svc.ApplyOrder(ctx, domain.Order{ID: "o1", CustomerID: "c1", Amount: 150, Date: when})
	if err != nil {
		t.Fatalf("apply order: %v", err)
	}

	c, err := svc.GetCustomer(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.TotalSpends != 150 || c.Visits != 1 {
		t.Fatalf("unexpected counters: spends=%v visits=%d", c.TotalSpends, c.Visits)
	}
	if c.LastVisit == nil || c.LastVisit.Before(before) {
		t.Fatalf("unexpected lastVisit: %v", c.LastVisit)
	}
}

func TestApplyCustomerReplacesExistingID(t *testing.T) {
	repo := newMemCustomerRepo()
	svc := ingest.NewService(repo, &memQueue{})
	ctx := context.Background()

	if err := svc.ApplyCustomer(ctx, domain.Customer{ID: "c1", Name: "A", Email: "old@x.com"}); err != nil {
		t.Fatalf("apply customer: %v", err)
	}
	if err := svc.ApplyCustomer(ctx, domain.Customer{
		ID: "c1", Name: "A", Email: "new@x.com", TotalSpends: 500, Visits: 2,
	}); err != nil {
		t.Fatalf("re-apply customer: %v", err)
	}

	c, err := svc.GetCustomer(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Email != "new@x.com" {
		t.Fatalf("expected replaced email, got %q", c.Email)
	}
	if c.TotalSpends != 500 || c.Visits != 2 {
		t.Fatalf("unexpected counters: spends=%v visits=%d", c.TotalSpends, c.Visits)
	}
}

func TestApplyOrderUnknownCustomer(t *testing.T) {
	svc := ingest.NewService(newMemCustomerRepo(), &memQueue{})

	err := svc.ApplyOrder(context.Background(), domain.Order{
		ID: "o1", CustomerID: "ghost", Amount: 10, Date: time.Now(),
	})
	if !errors.Is(err, ingest.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}
