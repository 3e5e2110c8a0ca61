package campaign

import (
	"context"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/queue"
	"github.com/ignite/crm-engine/internal/segment"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// ListByOwner returns the owner's campaigns ordered by created_at DESC,
	// along with the owner's total campaign count.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Campaign, int, error)

	// UpdateStatus transitions a campaign's status.
	UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error

	// ResetStats zeroes sent/failed and sets pending, the starting state of
	// a dispatch run.
	ResetStats(ctx context.Context, id string, pending int) error

	// IncrementStats atomically applies one delta to the campaign counters.
	// Pending never goes below zero.
	IncrementStats(ctx context.Context, id string, sent, failed, pending int) error
}

// AudienceRepository resolves segment rules against the customer store.
type AudienceRepository interface {
	CountBySegment(ctx context.Context, rule *segment.CompiledRule) (int, error)
}

// LogRepository exposes the communication log queries the realtime view needs.
type LogRepository interface {
	ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]domain.CommunicationLog, error)
	StatusDistribution(ctx context.Context, campaignID string) (map[domain.DeliveryStatus]int, error)
	HourlyTrend(ctx context.Context, campaignID string) ([]HourlyPoint, error)
}

// TaskQueue is the enqueue side of the work queue.
type TaskQueue interface {
	Enqueue(ctx context.Context, typ queue.TaskType, payload interface{}) (string, error)
}

// HourlyPoint is one hour's worth of resolved deliveries.
type HourlyPoint struct {
	Hour   time.Time `json:"hour"`
	Sent   int       `json:"sent"`
	Failed int       `json:"failed"`
}
