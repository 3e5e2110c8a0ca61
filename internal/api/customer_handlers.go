package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/pkg/httputil"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/service/ingest"
)

// IngestCustomer validates one customer and enqueues it. Returns 202 with
// the task id; nothing touches the store on the request path.
func (h *Handlers) IngestCustomer(w http.ResponseWriter, r *http.Request) {
	var c domain.Customer
	if !httputil.Decode(w, r, &c) {
		return
	}
	taskID, err := h.ingest.QueueCustomer(r.Context(), c)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	logger.Info("Customer queued", "email", c.Email, "task", taskID)
	httputil.JSON(w, http.StatusAccepted, map[string]string{
		"taskId": taskID,
		"status": "queued",
	})
}

// IngestCustomerBatch accepts up to thousands of customers at once; the
// service splits them into chunk tasks. One invalid record rejects the
// whole submission.
func (h *Handlers) IngestCustomerBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Customers []domain.Customer `json:"customers"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	taskIDs, err := h.ingest.QueueCustomerBatch(r.Context(), body.Customers)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	logger.Info("Customer batch queued", "customers", len(body.Customers), "chunks", len(taskIDs))
	httputil.JSON(w, http.StatusAccepted, map[string]interface{}{
		"taskIds": taskIDs,
		"chunks":  len(taskIDs),
		"status":  "queued",
	})
}

// IngestOrder validates one order and enqueues it.
func (h *Handlers) IngestOrder(w http.ResponseWriter, r *http.Request) {
	var o domain.Order
	if !httputil.Decode(w, r, &o) {
		return
	}
	taskID, err := h.ingest.QueueOrder(r.Context(), o)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{
		"taskId": taskID,
		"status": "queued",
	})
}

// GetCustomer returns one customer by id.
func (h *Handlers) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.ingest.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ingest.ErrCustomerNotFound) {
			httputil.NotFound(w, "customer not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, c)
}
