package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/crm-engine/internal/pkg/httputil"
	"github.com/ignite/crm-engine/internal/segment"
	"github.com/ignite/crm-engine/internal/service/campaign"
)

type createCampaignRequest struct {
	Name        string          `json:"name"`
	OwnerID     string          `json:"userId"`
	SegmentRule json.RawMessage `json:"segmentRules"`
	Message     string          `json:"message"`
}

// CreateCampaign validates the segment rule, snapshots the audience size,
// and enqueues the campaign for dispatch. Returns 201 with the campaign.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.OwnerID == "" {
		req.OwnerID = r.Header.Get("X-User-ID")
	}
	c, err := h.campaigns.Create(r.Context(), campaign.CreateInput{
		Name:        req.Name,
		OwnerID:     req.OwnerID,
		SegmentRule: req.SegmentRule,
		Message:     req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, segment.ErrInvalidRule),
			errors.Is(err, campaign.ErrMissingName),
			errors.Is(err, campaign.ErrMissingMessage),
			errors.Is(err, campaign.ErrMissingOwner):
			httputil.BadRequest(w, err.Error())
		default:
			httputil.InternalError(w, err)
		}
		return
	}
	httputil.Created(w, c)
}

// PreviewAudience returns how many customers a rule matches right now,
// without creating a campaign.
func (h *Handlers) PreviewAudience(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SegmentRule json.RawMessage `json:"segmentRules"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	n, err := h.campaigns.PreviewAudience(r.Context(), body.SegmentRule)
	if err != nil {
		if errors.Is(err, segment.ErrInvalidRule) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"audienceSize": n})
}

// ListCampaigns returns the owner's campaigns newest first.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("userId")
	if ownerID == "" {
		ownerID = r.Header.Get("X-User-ID")
	}
	if ownerID == "" {
		httputil.BadRequest(w, "userId query parameter is required")
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	campaigns, total, err := h.campaigns.List(r.Context(), ownerID, limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"campaigns": campaigns,
		"total":     total,
	})
}

// GetCampaign returns one campaign with its counter snapshot.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, c)
}

// GetCampaignLogs returns a page of the campaign's communication log.
func (h *Handlers) GetCampaignLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.campaigns.Logs(r.Context(), chi.URLParam(r, "id"),
		queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"logs": logs})
}

// GetCampaignRealtime returns the live delivery view: counters, status
// distribution, hourly trend, and estimated completion.
func (h *Handlers) GetCampaignRealtime(w http.ResponseWriter, r *http.Request) {
	stats, err := h.campaigns.Realtime(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
