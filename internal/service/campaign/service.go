package campaign

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/messaging"
	"github.com/ignite/crm-engine/internal/queue"
	"github.com/ignite/crm-engine/internal/segment"
)

// DeliveryRatePerMinute is the assumed vendor throughput used for the
// estimated completion figure in the realtime view.
const DeliveryRatePerMinute = 10

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repositories are concurrency-safe.
type Service struct {
	repo     Repository
	audience AudienceRepository
	logs     LogRepository
	tasks    TaskQueue
	renderer *messaging.Renderer
}

// NewService creates a campaign service.
func NewService(repo Repository, audience AudienceRepository, logs LogRepository, tasks TaskQueue) *Service {
	return &Service{
		repo:     repo,
		audience: audience,
		logs:     logs,
		tasks:    tasks,
		renderer: messaging.NewRenderer(),
	}
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name        string `json:"name"`
	OwnerID     string `json:"ownerId"`
	SegmentRule []byte `json:"segmentRule"`
	Message     string `json:"message"`
}

// Create validates the input, resolves the audience size, persists the
// campaign in PENDING status, and enqueues it for asynchronous dispatch.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, ErrMissingName
	}
	if input.Message == "" {
		return nil, ErrMissingMessage
	}
	if input.OwnerID == "" {
		return nil, ErrMissingOwner
	}
	if err := s.renderer.Validate(input.Message); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	rule, err := segment.ParseRule(input.SegmentRule)
	if err != nil {
		return nil, err
	}
	compiled, err := segment.Compile(rule)
	if err != nil {
		return nil, err
	}

	size, err := s.audience.CountBySegment(ctx, compiled)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}

	c := &domain.Campaign{
		ID:           uuid.New().String(),
		Name:         input.Name,
		OwnerID:      input.OwnerID,
		SegmentRule:  input.SegmentRule,
		Message:      input.Message,
		AudienceSize: size,
		Status:       domain.CampaignPending,
	}
	if _, err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	if _, err := s.tasks.Enqueue(ctx, queue.TaskProcessCampaign,
		queue.ProcessCampaignPayload{CampaignID: c.ID}); err != nil {
		// The campaign exists but won't dispatch; surface the failure so the
		// caller can retry rather than silently stranding it in PENDING.
		return nil, fmt.Errorf("enqueue campaign %s: %w", c.ID, err)
	}

	log.Printf("[campaign.Service] Campaign %s created, audience %d", c.ID, size)
	return c, nil
}

// PreviewAudience returns the number of customers a segment rule currently
// matches, without creating anything.
func (s *Service) PreviewAudience(ctx context.Context, ruleJSON []byte) (int, error) {
	rule, err := segment.ParseRule(ruleJSON)
	if err != nil {
		return 0, err
	}
	compiled, err := segment.Compile(rule)
	if err != nil {
		return 0, err
	}
	return s.audience.CountBySegment(ctx, compiled)
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns the owner's campaigns newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]domain.Campaign, int, error) {
	return s.repo.ListByOwner(ctx, ownerID, limit, offset)
}

// Logs returns a page of a campaign's per-recipient communication log.
func (s *Service) Logs(ctx context.Context, campaignID string, limit, offset int) ([]domain.CommunicationLog, error) {
	if _, err := s.repo.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.logs.ListByCampaign(ctx, campaignID, limit, offset)
}

// RealtimeStats is the live monitoring view of one campaign.
type RealtimeStats struct {
	Campaign         *domain.Campaign              `json:"campaign"`
	Distribution     map[domain.DeliveryStatus]int `json:"distribution"`
	HourlyTrend      []HourlyPoint                 `json:"hourlyTrend"`
	EstimatedMinutes int                           `json:"estimatedMinutes"`
	PercentComplete  float64                       `json:"percentComplete"`
}

// Realtime assembles the live delivery view: counter snapshot, per-status
// log distribution, hourly trend, and a completion estimate assuming
// DeliveryRatePerMinute.
func (s *Service) Realtime(ctx context.Context, campaignID string) (*RealtimeStats, error) {
	c, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	dist, err := s.logs.StatusDistribution(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	trend, err := s.logs.HourlyTrend(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	stats := &RealtimeStats{
		Campaign:     c,
		Distribution: dist,
		HourlyTrend:  trend,
	}

	pending := c.Stats.Pending
	if pending > 0 {
		// Ceiling division: 1..10 pending is still "1 minute".
		stats.EstimatedMinutes = (pending + DeliveryRatePerMinute - 1) / DeliveryRatePerMinute
	}
	if c.AudienceSize > 0 {
		done := c.Stats.Sent + c.Stats.Failed
		stats.PercentComplete = float64(done) / float64(c.AudienceSize) * 100
	}
	return stats, nil
}
