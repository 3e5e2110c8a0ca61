package api

import (
	"net/http"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/pkg/httputil"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/queue"
)

type deliveryReceiptRequest struct {
	DeliveryID string    `json:"deliveryId"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// DeliveryReceipt is the vendor callback. The receipt is validated and
// enqueued; the aggregator applies it in batches. Unknown delivery ids
// are accepted here and turn into no-ops downstream, since the vendor may
// outlive a campaign's logs.
func (h *Handlers) DeliveryReceipt(w http.ResponseWriter, r *http.Request) {
	var req deliveryReceiptRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.DeliveryID == "" {
		httputil.BadRequest(w, "deliveryId is required")
		return
	}
	if _, ok := domain.ParseDeliveryStatus(req.Status); !ok {
		logger.Warn("Receipt rejected", "deliveryId", req.DeliveryID, "status", req.Status)
		httputil.BadRequest(w, "status must be SENT or FAILED")
		return
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if _, err := h.receipts.Enqueue(r.Context(), queue.TaskUpdateDeliveryStatus,
		queue.UpdateDeliveryStatusPayload{
			DeliveryID: req.DeliveryID,
			Status:     req.Status,
			Timestamp:  ts,
		}); err != nil {
		httputil.InternalError(w, err)
		return
	}
	logger.Debug("Receipt queued", "deliveryId", req.DeliveryID, "status", req.Status)
	httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
