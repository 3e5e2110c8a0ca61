package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/queue"
	"github.com/ignite/crm-engine/internal/service/ingest"
)

// claimBlock is how long a runner goroutine waits on the queue per claim.
const claimBlock = 2 * time.Second

// Runner drains the task queue with a pool of goroutines and routes each
// task to its consumer. Tasks are acked after handling; handler errors are
// logged and the task dropped, since every producer validates before
// enqueueing and transient store errors are retried inside the handlers'
// own layers.
type Runner struct {
	q          *queue.Queue
	ingest     *ingest.Service
	dispatcher *Dispatcher
	receipts   ReceiptSink
	numWorkers int

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewRunner creates a task runner with the given pool size.
func NewRunner(q *queue.Queue, ingestSvc *ingest.Service, dispatcher *Dispatcher, receipts ReceiptSink, numWorkers int) *Runner {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Runner{
		q:          q,
		ingest:     ingestSvc,
		dispatcher: dispatcher,
		receipts:   receipts,
		numWorkers: numWorkers,
	}
}

// Start recovers orphaned tasks and launches the worker pool.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runner already running")
	}
	r.running = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	if n, err := r.q.RequeueStale(ctx); err != nil {
		log.Printf("[Runner] Stale task recovery: %v", err)
	} else if n > 0 {
		log.Printf("[Runner] Recovered %d orphaned tasks", n)
	}

	log.Printf("[Runner] Starting %d workers", r.numWorkers)
	for i := 0; i < r.numWorkers; i++ {
		r.wg.Add(1)
		go r.loop(ctx, i)
	}
	return nil
}

// Stop cancels the pool and waits for in-flight tasks to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	log.Println("[Runner] Stopped")
}

func (r *Runner) loop(ctx context.Context, n int) {
	defer r.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		claimed, err := r.q.Claim(ctx, claimBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Runner %d] Claim: %v", n, err)
			time.Sleep(time.Second)
			continue
		}
		if claimed == nil {
			continue
		}

		if err := r.handle(ctx, claimed.Task); err != nil {
			log.Printf("[Runner %d] Task %s (%s) failed: %v", n, claimed.Task.ID, claimed.Task.Type, err)
		}
		if err := r.q.Ack(ctx, claimed); err != nil {
			log.Printf("[Runner %d] Ack %s: %v", n, claimed.Task.ID, err)
		}
	}
}

func (r *Runner) handle(ctx context.Context, t queue.Task) error {
	switch t.Type {
	case queue.TaskIngestCustomer:
		var p queue.IngestCustomerPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		return r.ingest.ApplyCustomer(ctx, p.Customer)

	case queue.TaskBatchIngestCustomers:
		var p queue.BatchIngestCustomersPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		_, err := r.ingest.ApplyCustomerBatch(ctx, p.Customers)
		return err

	case queue.TaskIngestOrder:
		var p queue.IngestOrderPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		return r.ingest.ApplyOrder(ctx, p.Order)

	case queue.TaskProcessCampaign:
		var p queue.ProcessCampaignPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		return r.dispatcher.Process(ctx, p.CampaignID)

	case queue.TaskUpdateDeliveryStatus:
		var p queue.UpdateDeliveryStatusPayload
		if err := t.Decode(&p); err != nil {
			return err
		}
		status, ok := domain.ParseDeliveryStatus(p.Status)
		if !ok {
			return fmt.Errorf("unknown delivery status %q", p.Status)
		}
		ts := p.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		r.receipts.Add(domain.DeliveryReceipt{
			DeliveryID: p.DeliveryID,
			Status:     status,
			Timestamp:  ts,
		})
		return nil

	default:
		return fmt.Errorf("unknown task type %q", t.Type)
	}
}
