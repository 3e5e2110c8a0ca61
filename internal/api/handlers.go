// Package api exposes the HTTP surface: ingestion, campaign management,
// realtime monitoring, and the vendor's delivery receipt callback.
package api

import (
	"net/http"
	"time"

	"github.com/ignite/crm-engine/internal/pkg/httputil"
	"github.com/ignite/crm-engine/internal/service/campaign"
	"github.com/ignite/crm-engine/internal/service/ingest"
)

// Handlers bundles the HTTP handlers and their service dependencies.
type Handlers struct {
	campaigns *campaign.Service
	ingest    *ingest.Service
	receipts  campaign.TaskQueue
	startedAt time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(campaigns *campaign.Service, ingestSvc *ingest.Service, receipts campaign.TaskQueue) *Handlers {
	return &Handlers{
		campaigns: campaigns,
		ingest:    ingestSvc,
		receipts:  receipts,
		startedAt: time.Now(),
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}
