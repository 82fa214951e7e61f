package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/pkg/httputil"
)

// ActiveRuns handles GET /api/campaigns/runs/active.
func (h *Handlers) ActiveRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.status.Summarize(r.Context(), OrgIDFromContext(r.Context()), localeFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.NoCache(w)
	httputil.OK(w, runs)
}

// RecentRecipients handles GET /api/campaigns/runs/{runID}/recent_recipients.
func (h *Handlers) RecentRecipients(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.status.RecentRecipients(r.Context(), OrgIDFromContext(r.Context()),
		chi.URLParam(r, "runID"), limit, localeFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.NoCache(w)
	httputil.OK(w, rows)
}

type runTransition func(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error)

func (h *Handlers) transitionRun(fn runTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := OrgIDFromContext(r.Context())
		run, err := fn(r.Context(), orgID, chi.URLParam(r, "runID"))
		if err != nil {
			writeError(w, err)
			return
		}
		h.status.Invalidate(r.Context(), orgID)
		httputil.OK(w, map[string]any{"ok": true, "run": run})
	}
}

// PauseRun handles POST /api/campaigns/runs/{runID}/pause.
func (h *Handlers) PauseRun(w http.ResponseWriter, r *http.Request) {
	h.transitionRun(h.campaigns.PauseRun)(w, r)
}

// ResumeRun handles POST /api/campaigns/runs/{runID}/resume.
func (h *Handlers) ResumeRun(w http.ResponseWriter, r *http.Request) {
	h.transitionRun(h.campaigns.ResumeRun)(w, r)
}

// CompleteRun handles POST /internal/runs/{runID}/complete.
func (h *Handlers) CompleteRun(w http.ResponseWriter, r *http.Request) {
	h.transitionRun(h.campaigns.CompleteRun)(w, r)
}

// FailRun handles POST /internal/runs/{runID}/fail.
func (h *Handlers) FailRun(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 && !httputil.Decode(w, r, &in) {
		return
	}
	h.transitionRun(func(ctx context.Context, orgID, runID string) (*domain.CampaignRun, error) {
		return h.campaigns.FailRun(ctx, orgID, runID, in.Reason)
	})(w, r)
}

// ReceiveEvent handles POST /internal/events. Duplicate bodies are
// acknowledged without being stored twice.
func (h *Handlers) ReceiveEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, "invalid_body")
		return
	}
	fresh, err := h.events.Accept(r.Context(), OrgIDFromContext(r.Context()), body)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]any{"ok": true, "duplicate": !fresh})
}
