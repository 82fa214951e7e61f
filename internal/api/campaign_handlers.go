package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/pkg/httputil"
	"github.com/ignite/wa-outreach/internal/service/campaign"
)

const maxBodyBytes = 1 << 20

// CreateCampaign handles POST /api/campaigns.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), OrgIDFromContext(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, map[string]any{"ok": true, "campaign": c})
}

// ListCampaigns handles GET /api/campaigns.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := campaign.ListFilter{Status: q.Get("status"), Search: q.Get("q")}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	items, total, err := h.campaigns.List(r.Context(), OrgIDFromContext(r.Context()), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []domain.Campaign{}
	}
	httputil.OK(w, map[string]any{"ok": true, "items": items, "total": total})
}

// GetCampaign handles GET /api/campaigns/{id}.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), OrgIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"ok": true, "campaign": c})
}

// UpdateAudience handles PUT /api/campaigns/{id}/audience. The body may be
// a bare audience or a full segment.
func (h *Handlers) UpdateAudience(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, "invalid_body")
		return
	}
	seg, err := domain.ParseSegment(body)
	if err != nil {
		httputil.ErrorWithDetails(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	c, err := h.campaigns.UpdateAudience(r.Context(), OrgIDFromContext(r.Context()), chi.URLParam(r, "id"), seg.Audience)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"ok": true, "campaign": c})
}

// UpdateMessage handles PATCH /api/campaigns/{id}/message.
func (h *Handlers) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	var m domain.MessageConfig
	if !httputil.Decode(w, r, &m) {
		return
	}
	c, err := h.campaigns.UpdateMessage(r.Context(), OrgIDFromContext(r.Context()), chi.URLParam(r, "id"), m)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"ok": true, "campaign": c})
}

// ScheduleCampaign handles POST /api/campaigns/{id}/schedule.
func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.ScheduleInput
	if r.ContentLength != 0 && !httputil.Decode(w, r, &in) {
		return
	}
	cfg, err := h.campaigns.Schedule(r.Context(), OrgIDFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"ok": true, "throttle": cfg})
}

// EstimateAudience handles POST /api/campaigns/{id}/estimate.
func (h *Handlers) EstimateAudience(w http.ResponseWriter, r *http.Request) {
	n, err := h.campaigns.Estimate(r.Context(), OrgIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"ok": true, "count": n})
}

// ArchiveCampaign handles POST /api/campaigns/{id}/archive.
func (h *Handlers) ArchiveCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Archive(r.Context(), OrgIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"ok": true})
}

// PreviewMessage handles POST /api/campaigns/{id}/preview.
func (h *Handlers) PreviewMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Variables map[string]any `json:"variables"`
	}
	if r.ContentLength != 0 && !httputil.Decode(w, r, &in) {
		return
	}
	p, err := h.campaigns.Preview(r.Context(), OrgIDFromContext(r.Context()), chi.URLParam(r, "id"), in.Variables)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"ok": true, "preview": p})
}

// ListPresets handles GET /api/campaigns/presets.
func (h *Handlers) ListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := h.campaigns.Presets(r.Context(), OrgIDFromContext(r.Context()), r.URL.Query().Get("group_ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"ok": true, "presets": presets})
}

// ListTemplates handles GET /api/campaigns/templates.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	grouped := h.campaigns.Templates()
	httputil.OK(w, map[string]any{
		"ok":    true,
		"text":  grouped[domain.MessageText],
		"audio": grouped[domain.MessageAudio],
		"video": grouped[domain.MessageVideo],
	})
}

// LaunchCampaign handles POST /api/campaigns/{id}/launch.
func (h *Handlers) LaunchCampaign(w http.ResponseWriter, r *http.Request) {
	orgID := OrgIDFromContext(r.Context())
	res, err := h.campaigns.Launch(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.status.Invalidate(r.Context(), orgID)
	httputil.OK(w, map[string]any{
		"ok":         true,
		"run_id":     res.RunID,
		"inserted":   res.Inserted,
		"dispatched": res.Dispatched,
	})
}
