package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/messaging"
	"github.com/ignite/crm-engine/internal/queue"
	"github.com/ignite/crm-engine/internal/service/ingest"
)

// memCustomerStore implements ingest.CustomerRepository for runner tests.
type memCustomerStore struct {
	mu   sync.Mutex
	byID map[string]*domain.Customer
}

func newMemCustomerStore() *memCustomerStore {
	return &memCustomerStore{byID: make(map[string]*domain.Customer)}
}

func (m *memCustomerStore) Get(_ context.Context, id string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, ingest.ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCustomerStore) Upsert(_ context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = "cust-" + c.Email
	}
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *memCustomerStore) BulkUpsert(ctx context.Context, customers []domain.Customer) (int, error) {
	for i := range customers {
		if err := m.Upsert(ctx, &customers[i]); err != nil {
			return i, err
		}
	}
	return len(customers), nil
}

func (m *memCustomerStore) ApplyOrder(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[o.CustomerID]
	if !ok {
		return ingest.ErrCustomerNotFound
	}
	c.TotalSpends += o.Amount
	c.Visits++
	now := time.Now()
	c.LastVisit = &now
	return nil
}

func (m *memCustomerStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func TestRunner_DrainsQueueEndToEnd(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	q := queue.New(rdb, "test:runner")
	store := newMemCustomerStore()
	ingestSvc := ingest.NewService(store, q)

	campaigns := newMemCampaigns(pendingCampaign("camp-1"))
	logs := newMemLogStore()
	agg := NewAggregator(logs, campaigns, 50, time.Hour)
	sender := &memSender{}
	dispatcher := NewDispatcher(campaigns, &memAudience{customers: dispatchCustomers()}, logs,
		sender, messaging.NewRenderer(), agg, newLocalLockFactory())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Producer side: one customer, one batch, one campaign dispatch.
	if _, err := ingestSvc.QueueCustomer(ctx, domain.Customer{Name: "Solo", Email: "solo@x.com"}); err != nil {
		t.Fatalf("queue customer: %v", err)
	}
	if _, err := ingestSvc.QueueCustomerBatch(ctx, []domain.Customer{
		{Name: "B1", Email: "b1@x.com"},
		{Name: "B2", Email: "b2@x.com"},
	}); err != nil {
		t.Fatalf("queue batch: %v", err)
	}
	if _, err := q.Enqueue(ctx, queue.TaskProcessCampaign, queue.ProcessCampaignPayload{CampaignID: "camp-1"}); err != nil {
		t.Fatalf("queue campaign: %v", err)
	}

	r := NewRunner(q, ingestSvc, dispatcher, agg, 2)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		depth, _ := q.Depth(ctx)
		if depth == 0 && store.count() == 3 && len(logs.byCampaign("camp-1")) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained: depth=%d customers=%d logs=%d",
				depth, store.count(), len(logs.byCampaign("camp-1")))
		}
		time.Sleep(20 * time.Millisecond)
	}

	c, _ := campaigns.Get(ctx, "camp-1")
	if c.Status != domain.CampaignProcessing {
		t.Fatalf("expected PROCESSING after dispatch, got %s", c.Status)
	}
}

func TestRunner_RoutesDeliveryStatusToAggregator(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	q := queue.New(rdb, "test:runner2")
	campaigns := newMemCampaigns(processingCampaign("camp-1", 1))
	logs := newMemLogStore()
	seedLogs(logs, "camp-1", "d1")
	agg := NewAggregator(logs, campaigns, 1, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	agg.Start(ctx)
	defer agg.Stop()

	ingestSvc := ingest.NewService(newMemCustomerStore(), q)
	dispatcher := NewDispatcher(campaigns, &memAudience{}, logs,
		&memSender{}, messaging.NewRenderer(), agg, newLocalLockFactory())

	// Vendor vocabulary, lowercase, exercises status normalization.
	if _, err := q.Enqueue(ctx, queue.TaskUpdateDeliveryStatus, queue.UpdateDeliveryStatusPayload{
		DeliveryID: "d1",
		Status:     "success",
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	r := NewRunner(q, ingestSvc, dispatcher, agg, 1)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		c, _ := campaigns.Get(ctx, "camp-1")
		if c.Stats.Sent == 1 && c.Status == domain.CampaignCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("receipt never applied: %+v status=%s", c.Stats, c.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
