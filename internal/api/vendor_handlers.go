package api

import (
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/pkg/httputil"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/queue"
)

// vendorStubSuccessRate is the share of sends the stub reports as SENT.
const vendorStubSuccessRate = 0.9

type vendorSendRequest struct {
	DeliveryID string `json:"deliveryId"`
	To         string `json:"to"`
	Message    string `json:"message"`
}

// VendorSend is a stand-in for an external delivery vendor's send API. It
// accepts the message, picks an outcome, and reports it back through the
// same receipt path a real vendor callback would use. Useful for local
// setups that run without the in-process vendor simulator.
func (h *Handlers) VendorSend(w http.ResponseWriter, r *http.Request) {
	var req vendorSendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.DeliveryID == "" {
		httputil.BadRequest(w, "deliveryId is required")
		return
	}

	status := domain.DeliverySent
	if rand.Float64() >= vendorStubSuccessRate {
		status = domain.DeliveryFailed
	}

	if _, err := h.receipts.Enqueue(r.Context(), queue.TaskUpdateDeliveryStatus,
		queue.UpdateDeliveryStatusPayload{
			DeliveryID: req.DeliveryID,
			Status:     string(status),
			Timestamp:  time.Now().UTC(),
		}); err != nil {
		httputil.InternalError(w, err)
		return
	}

	log.Printf("[VendorStub] Send accepted for %s (delivery %s, outcome %s)",
		logger.RedactEmail(req.To), req.DeliveryID, status)
	httputil.OK(w, map[string]string{"status": "accepted", "deliveryId": req.DeliveryID})
}
