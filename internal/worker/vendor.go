package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/pkg/httpretry"
)

// Vendor simulator defaults, tuned to look like a real delivery provider:
// most messages land, a tail fails, and acknowledgments trickle back with
// jitter rather than in dispatch order.
const (
	DefaultSuccessRate = 0.9
	DefaultMaxDelay    = 2 * time.Second
)

// VendorSimulator stands in for the external delivery vendor. Send accepts
// a message immediately; a goroutine sleeps a random delay, rolls the
// success rate, and POSTs a delivery receipt to the callback URL.
type VendorSimulator struct {
	callbackURL string
	successRate float64
	maxDelay    time.Duration
	client      httpretry.HTTPDoer

	mu  sync.Mutex
	rng *rand.Rand
	wg  sync.WaitGroup
}

// NewVendorSimulator creates a simulator posting receipts to callbackURL.
// Out-of-range successRate falls back to the default, zero maxDelay to the
// default. A nil client gets a retrying HTTP client.
func NewVendorSimulator(callbackURL string, successRate float64, maxDelay time.Duration, client httpretry.HTTPDoer) *VendorSimulator {
	if successRate <= 0 || successRate > 1 {
		successRate = DefaultSuccessRate
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if client == nil {
		client = httpretry.NewRetryClient(&http.Client{Timeout: 10 * time.Second}, 3)
	}
	return &VendorSimulator{
		callbackURL: callbackURL,
		successRate: successRate,
		maxDelay:    maxDelay,
		client:      client,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Send accepts one message for delivery. The receipt arrives later on the
// callback endpoint.
func (v *VendorSimulator) Send(ctx context.Context, msg *domain.CommunicationLog) error {
	if msg.DeliveryID == "" {
		return fmt.Errorf("message %s has no delivery id", msg.ID)
	}

	v.mu.Lock()
	delay := time.Duration(v.rng.Int63n(int64(v.maxDelay)))
	sent := v.rng.Float64() < v.successRate
	v.mu.Unlock()

	status := domain.DeliverySent
	if !sent {
		status = domain.DeliveryFailed
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		v.postReceipt(ctx, domain.DeliveryReceipt{
			DeliveryID: msg.DeliveryID,
			Status:     status,
			Timestamp:  time.Now().UTC(),
		})
	}()
	return nil
}

func (v *VendorSimulator) postReceipt(ctx context.Context, r domain.DeliveryReceipt) {
	body, err := json.Marshal(r)
	if err != nil {
		log.Printf("[Vendor] Marshal receipt %s: %v", r.DeliveryID, err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.callbackURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("[Vendor] Build receipt request %s: %v", r.DeliveryID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := v.client.Do(req)
	if err != nil {
		log.Printf("[Vendor] Receipt %s callback failed: %v", r.DeliveryID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("[Vendor] Receipt %s callback returned %d", r.DeliveryID, resp.StatusCode)
	}
}

// Wait blocks until every in-flight receipt has been posted. Used on
// shutdown and in tests.
func (v *VendorSimulator) Wait() {
	v.wg.Wait()
}
