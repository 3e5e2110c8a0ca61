package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/pkg/distlock"
	"github.com/ignite/crm-engine/internal/segment"
	"github.com/ignite/crm-engine/internal/service/campaign"
)

// In-memory fakes shared by the worker tests.

type memCampaigns struct {
	mu         sync.Mutex
	campaigns  map[string]*domain.Campaign
	increments map[string]int // flush increments per campaign
}

func newMemCampaigns(cs ...*domain.Campaign) *memCampaigns {
	m := &memCampaigns{
		campaigns:  make(map[string]*domain.Campaign),
		increments: make(map[string]int),
	}
	for _, c := range cs {
		cp := *c
		m.campaigns[cp.ID] = &cp
	}
	return m
}

func (m *memCampaigns) Create(_ context.Context, c *domain.Campaign) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memCampaigns) Get(_ context.Context, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCampaigns) ListByOwner(_ context.Context, ownerID string, _, _ int) ([]domain.Campaign, int, error) {
	return nil, 0, nil
}

func (m *memCampaigns) UpdateStatus(_ context.Context, id string, status domain.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	c.Status = status
	return nil
}

func (m *memCampaigns) ResetStats(_ context.Context, id string, pending int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	c.Stats = domain.CampaignStats{Pending: pending}
	return nil
}

func (m *memCampaigns) IncrementStats(_ context.Context, id string, sent, failed, pending int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	c.Stats.Sent += sent
	c.Stats.Failed += failed
	c.Stats.Pending += pending
	if c.Stats.Pending < 0 {
		c.Stats.Pending = 0
	}
	m.increments[id]++
	return nil
}

func (m *memCampaigns) incrementCalls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.increments[id]
}

type memLogStore struct {
	mu   sync.Mutex
	rows map[string]*domain.CommunicationLog // keyed by delivery id
}

func newMemLogStore() *memLogStore {
	return &memLogStore{rows: make(map[string]*domain.CommunicationLog)}
}

func (m *memLogStore) BulkInsert(_ context.Context, logs []domain.CommunicationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range logs {
		cp := logs[i]
		m.rows[cp.DeliveryID] = &cp
	}
	return nil
}

func (m *memLogStore) MarkDelivered(_ context.Context, receipts []domain.DeliveryReceipt) ([]domain.DeliveryOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeliveryOutcome
	for _, r := range receipts {
		row, ok := m.rows[r.DeliveryID]
		if !ok {
			continue
		}
		row.Status = r.Status
		ts := r.Timestamp
		row.SentAt = &ts
		out = append(out, domain.DeliveryOutcome{CampaignID: row.CampaignID, Status: r.Status})
	}
	return out, nil
}

func (m *memLogStore) get(deliveryID string) *domain.CommunicationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[deliveryID]; ok {
		cp := *row
		return &cp
	}
	return nil
}

func (m *memLogStore) byCampaign(campaignID string) []domain.CommunicationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CommunicationLog
	for _, row := range m.rows {
		if row.CampaignID == campaignID {
			out = append(out, *row)
		}
	}
	return out
}

type memAudience struct{ customers []domain.Customer }

func (m *memAudience) CountBySegment(_ context.Context, rule *segment.CompiledRule) (int, error) {
	n := 0
	for i := range m.customers {
		if rule.Matches(&m.customers[i]) {
			n++
		}
	}
	return n, nil
}

func (m *memAudience) QueryBySegment(_ context.Context, rule *segment.CompiledRule, limit, offset int) ([]domain.Customer, error) {
	var matched []domain.Customer
	for i := range m.customers {
		if rule.Matches(&m.customers[i]) {
			matched = append(matched, m.customers[i])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// memSender records handoffs and can fail selected recipients.
type memSender struct {
	mu        sync.Mutex
	sent      []domain.CommunicationLog
	failEmail map[string]bool
}

func (m *memSender) Send(_ context.Context, l *domain.CommunicationLog) error {
	if m.failEmail[l.CustomerEmail] {
		return fmt.Errorf("vendor rejected %s", l.CustomerEmail)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, *l)
	return nil
}

func (m *memSender) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// localLock is an in-process distlock.DistLock.
type localLock struct {
	mu   *sync.Mutex
	held *bool
}

func newLocalLockFactory() LockFactory {
	var mu sync.Mutex
	held := make(map[string]*bool)
	return func(key string) distlock.DistLock {
		mu.Lock()
		defer mu.Unlock()
		h, ok := held[key]
		if !ok {
			h = new(bool)
			held[key] = h
		}
		return &localLock{mu: &mu, held: h}
	}
}

func (l *localLock) Acquire(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if *l.held {
		return false, nil
	}
	*l.held = true
	return true, nil
}

func (l *localLock) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.held = false
	return nil
}

func receiptAt(deliveryID string, status domain.DeliveryStatus) domain.DeliveryReceipt {
	return domain.DeliveryReceipt{DeliveryID: deliveryID, Status: status, Timestamp: time.Now().UTC()}
}
