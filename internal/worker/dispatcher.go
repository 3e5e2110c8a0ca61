package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/messaging"
	"github.com/ignite/crm-engine/internal/pkg/distlock"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/segment"
	"github.com/ignite/crm-engine/internal/service/campaign"
)

// DefaultPageSize is how many audience members a dispatch pass loads at once.
const DefaultPageSize = 500

// ReceiptSink accepts delivery receipts for asynchronous aggregation.
type ReceiptSink interface {
	Add(r domain.DeliveryReceipt)
}

// LockFactory builds a distributed lock for a key. The dispatcher takes a
// factory rather than a client so tests can substitute a local lock.
type LockFactory func(key string) distlock.DistLock

// Dispatcher runs one campaign end to end: it snapshots the audience,
// writes PENDING communication logs, and hands each message to the vendor.
// Delivery outcomes arrive later through the aggregator.
type Dispatcher struct {
	campaigns campaign.Repository
	audience  AudienceStore
	logs      LogStore
	sender    Sender
	renderer  *messaging.Renderer
	receipts  ReceiptSink
	lockFor   LockFactory
	pageSize  int
}

// NewDispatcher creates a campaign dispatcher.
func NewDispatcher(campaigns campaign.Repository, audience AudienceStore, logs LogStore,
	sender Sender, renderer *messaging.Renderer, receipts ReceiptSink, lockFor LockFactory) *Dispatcher {
	return &Dispatcher{
		campaigns: campaigns,
		audience:  audience,
		logs:      logs,
		sender:    sender,
		renderer:  renderer,
		receipts:  receipts,
		lockFor:   lockFor,
		pageSize:  DefaultPageSize,
	}
}

// SetPageSize overrides the audience page size used during dispatch.
func (d *Dispatcher) SetPageSize(n int) {
	if n > 0 {
		d.pageSize = n
	}
}

// Process dispatches one campaign. It is safe to deliver the same task more
// than once: a distributed lock serializes concurrent claims, and campaigns
// already processing or finished are skipped.
func (d *Dispatcher) Process(ctx context.Context, campaignID string) error {
	lock := d.lockFor("campaign:dispatch:" + campaignID)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !ok {
		log.Printf("[Dispatcher] Campaign %s already locked, skipping", campaignID)
		return nil
	}
	defer lock.Release(ctx)

	c, err := d.campaigns.Get(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.IsTerminal() || c.Status == domain.CampaignProcessing {
		log.Printf("[Dispatcher] Campaign %s is %s, skipping", campaignID, c.Status)
		return nil
	}

	if err := d.dispatch(ctx, c); err != nil {
		if stErr := d.campaigns.UpdateStatus(ctx, campaignID, domain.CampaignFailed); stErr != nil {
			log.Printf("[Dispatcher] Campaign %s: failed to mark FAILED: %v", campaignID, stErr)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, c *domain.Campaign) error {
	rule, err := segment.ParseRule(c.SegmentRule)
	if err != nil {
		return fmt.Errorf("campaign %s rule: %w", c.ID, err)
	}
	compiled, err := segment.Compile(rule)
	if err != nil {
		return fmt.Errorf("campaign %s rule: %w", c.ID, err)
	}

	total, err := d.audience.CountBySegment(ctx, compiled)
	if err != nil {
		return fmt.Errorf("campaign %s audience: %w", c.ID, err)
	}

	// Counters must read {0, 0, N} before the first receipt can arrive.
	if err := d.campaigns.ResetStats(ctx, c.ID, total); err != nil {
		return err
	}
	if total == 0 {
		log.Printf("[Dispatcher] Campaign %s matched nobody, completing", c.ID)
		return d.campaigns.UpdateStatus(ctx, c.ID, domain.CampaignCompleted)
	}
	if err := d.campaigns.UpdateStatus(ctx, c.ID, domain.CampaignProcessing); err != nil {
		return err
	}

	dispatched := 0
	for offset := 0; ; offset += d.pageSize {
		customers, err := d.audience.QueryBySegment(ctx, compiled, d.pageSize, offset)
		if err != nil {
			return fmt.Errorf("campaign %s page at %d: %w", c.ID, offset, err)
		}
		if len(customers) == 0 {
			break
		}

		logs := make([]domain.CommunicationLog, 0, len(customers))
		for i := range customers {
			cust := &customers[i]
			logs = append(logs, domain.CommunicationLog{
				ID:            uuid.New().String(),
				CampaignID:    c.ID,
				CustomerID:    cust.ID,
				CustomerName:  cust.Name,
				CustomerEmail: cust.Email,
				Message:       d.renderer.Render(c.ID, c.Message, cust),
				DeliveryID:    "del_" + uuid.New().String(),
				Status:        domain.DeliveryPending,
			})
		}
		if err := d.logs.BulkInsert(ctx, logs); err != nil {
			return fmt.Errorf("campaign %s logs: %w", c.ID, err)
		}

		// One bad recipient must not sink the rest of the page. A vendor
		// handoff failure becomes a synthetic FAILED receipt so the counters
		// still converge.
		for i := range logs {
			if err := d.sender.Send(ctx, &logs[i]); err != nil {
				log.Printf("[Dispatcher] Campaign %s: send to %s failed: %v",
					c.ID, logger.RedactEmail(logs[i].CustomerEmail), err)
				d.receipts.Add(domain.DeliveryReceipt{
					DeliveryID: logs[i].DeliveryID,
					Status:     domain.DeliveryFailed,
					Timestamp:  time.Now().UTC(),
				})
			}
		}
		dispatched += len(customers)

		if len(customers) < d.pageSize {
			break
		}
	}

	d.renderer.Invalidate(c.ID)
	log.Printf("[Dispatcher] Campaign %s: dispatched %d of %d recipients", c.ID, dispatched, total)
	return nil
}
