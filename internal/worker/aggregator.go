package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/service/campaign"
)

// Aggregator defaults. A flush happens when the buffer reaches the batch
// size or the interval elapses, whichever comes first.
const (
	DefaultBatchSize     = 50
	DefaultFlushInterval = 5 * time.Second
)

// Aggregator buffers delivery receipts and applies them in batches: one
// bulk log update plus one counter increment per touched campaign, instead
// of a write per receipt.
//
// Receipts land in an in-memory arena guarded by a mutex. The flush path
// swaps in a fresh arena and processes the full one outside the lock, so
// producers never wait on the database. Failed flushes are logged and
// dropped; receipts are at-least-once and the pending clamp absorbs the
// drift.
type Aggregator struct {
	logs      LogStore
	campaigns campaign.Repository

	batchSize int
	interval  time.Duration

	mu    sync.Mutex
	arena []domain.DeliveryReceipt

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewAggregator creates a receipt aggregator. Zero batchSize or interval
// fall back to the defaults.
func NewAggregator(logs LogStore, campaigns campaign.Repository, batchSize int, interval time.Duration) *Aggregator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Aggregator{
		logs:      logs,
		campaigns: campaigns,
		batchSize: batchSize,
		interval:  interval,
		arena:     make([]domain.DeliveryReceipt, 0, batchSize),
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Add buffers one receipt. Never blocks on the database.
func (a *Aggregator) Add(r domain.DeliveryReceipt) {
	a.mu.Lock()
	a.arena = append(a.arena, r)
	full := len(a.arena) >= a.batchSize
	a.mu.Unlock()

	if full {
		select {
		case a.kick <- struct{}{}:
		default:
		}
	}
}

// Start runs the flush loop until Stop is called or the context ends.
func (a *Aggregator) Start(ctx context.Context) {
	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		log.Printf("[Aggregator] Started (batch=%d, interval=%s)", a.batchSize, a.interval)
		for {
			select {
			case <-ticker.C:
				a.flush(ctx)
			case <-a.kick:
				a.flush(ctx)
			case <-ctx.Done():
				a.flush(context.Background())
				return
			case <-a.stop:
				// Drain whatever arrived before shutdown.
				a.flush(context.Background())
				return
			}
		}
	}()
}

// Stop flushes the remaining buffer and waits for the loop to exit.
func (a *Aggregator) Stop() {
	close(a.stop)
	<-a.done
	log.Println("[Aggregator] Stopped")
}

// Flush forces a synchronous flush. Used by tests and shutdown paths.
func (a *Aggregator) Flush(ctx context.Context) {
	a.flush(ctx)
}

func (a *Aggregator) flush(ctx context.Context) {
	a.mu.Lock()
	if len(a.arena) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.arena
	a.arena = make([]domain.DeliveryReceipt, 0, a.batchSize)
	a.mu.Unlock()

	outcomes, err := a.logs.MarkDelivered(ctx, batch)
	if err != nil {
		log.Printf("[Aggregator] Dropping %d receipts: %v", len(batch), err)
		return
	}

	// One increment per campaign per flush, not per receipt.
	type delta struct{ sent, failed int }
	perCampaign := make(map[string]*delta)
	for _, o := range outcomes {
		d := perCampaign[o.CampaignID]
		if d == nil {
			d = &delta{}
			perCampaign[o.CampaignID] = d
		}
		if o.Status == domain.DeliverySent {
			d.sent++
		} else {
			d.failed++
		}
	}

	for id, d := range perCampaign {
		if err := a.campaigns.IncrementStats(ctx, id, d.sent, d.failed, -(d.sent + d.failed)); err != nil {
			log.Printf("[Aggregator] Campaign %s: stats increment lost (%d sent, %d failed): %v",
				id, d.sent, d.failed, err)
			continue
		}
		a.maybeComplete(ctx, id)
	}
}

// maybeComplete transitions a campaign to COMPLETED once its pending
// counter hits zero.
func (a *Aggregator) maybeComplete(ctx context.Context, campaignID string) {
	c, err := a.campaigns.Get(ctx, campaignID)
	if err != nil {
		log.Printf("[Aggregator] Campaign %s: completion check failed: %v", campaignID, err)
		return
	}
	if c.Status != domain.CampaignProcessing || c.Stats.Pending != 0 {
		return
	}
	if err := a.campaigns.UpdateStatus(ctx, campaignID, domain.CampaignCompleted); err != nil {
		log.Printf("[Aggregator] Campaign %s: complete transition failed: %v", campaignID, err)
		return
	}
	log.Printf("[Aggregator] Campaign %s completed (%d sent, %d failed)",
		campaignID, c.Stats.Sent, c.Stats.Failed)
}
