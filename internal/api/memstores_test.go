package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/segment"
	"github.com/ignite/crm-engine/internal/service/campaign"
	"github.com/ignite/crm-engine/internal/service/ingest"
)

// In-memory stores backing the full HTTP stack in tests. They implement the
// same interfaces the Postgres repositories do, with the compiled rule
// predicate standing in for the SQL push-down.

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
		c.ID = uuid.New().String()
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
	cp.CreatedAt = time.Now()
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

func (m *memCustomerRepo) matching(rule *segment.CompiledRule) []domain.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Customer
	for _, c := range m.byID {
		if rule.Matches(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (m *memCustomerRepo) CountBySegment(_ context.Context, rule *segment.CompiledRule) (int, error) {
	return len(m.matching(rule)), nil
}

func (m *memCustomerRepo) QueryBySegment(_ context.Context, rule *segment.CompiledRule, limit, offset int) ([]domain.Customer, error) {
	matched := m.matching(rule)
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

type memCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{campaigns: make(map[string]*domain.Campaign)}
}

func (m *memCampaignRepo) Create(_ context.Context, c *domain.Campaign) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.CreatedAt = time.Now()
	m.campaigns[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memCampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCampaignRepo) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]domain.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (m *memCampaignRepo) UpdateStatus(_ context.Context, id string, status domain.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	c.Status = status
	return nil
}

func (m *memCampaignRepo) ResetStats(_ context.Context, id string, pending int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	c.Stats = domain.CampaignStats{Pending: pending}
	return nil
}

func (m *memCampaignRepo) IncrementStats(_ context.Context, id string, sent, failed, pending int) error {
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
	return nil
}

type memLogRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.CommunicationLog // keyed by delivery id
}

func newMemLogRepo() *memLogRepo {
	return &memLogRepo{rows: make(map[string]*domain.CommunicationLog)}
}

func (m *memLogRepo) BulkInsert(_ context.Context, logs []domain.CommunicationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range logs {
		cp := logs[i]
		cp.CreatedAt = time.Now()
		m.rows[cp.DeliveryID] = &cp
	}
	return nil
}

func (m *memLogRepo) MarkDelivered(_ context.Context, receipts []domain.DeliveryReceipt) ([]domain.DeliveryOutcome, error) {
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

func (m *memLogRepo) ListByCampaign(_ context.Context, campaignID string, limit, offset int) ([]domain.CommunicationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CommunicationLog
	for _, row := range m.rows {
		if row.CampaignID == campaignID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *memLogRepo) StatusDistribution(_ context.Context, campaignID string) (map[domain.DeliveryStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dist := make(map[domain.DeliveryStatus]int)
	for _, row := range m.rows {
		if row.CampaignID == campaignID {
			dist[row.Status]++
		}
	}
	return dist, nil
}

func (m *memLogRepo) HourlyTrend(_ context.Context, campaignID string) ([]campaign.HourlyPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buckets := make(map[time.Time]*campaign.HourlyPoint)
	for _, row := range m.rows {
		if row.CampaignID != campaignID || row.SentAt == nil {
			continue
		}
		hour := row.SentAt.Truncate(time.Hour)
		p := buckets[hour]
		if p == nil {
			p = &campaign.HourlyPoint{Hour: hour}
			buckets[hour] = p
		}
		if row.Status == domain.DeliverySent {
			p.Sent++
		} else {
			p.Failed++
		}
	}
	var out []campaign.HourlyPoint
	for _, p := range buckets {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out, nil
}
