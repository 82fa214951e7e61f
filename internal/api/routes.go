package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/wa-outreach/internal/pkg/httputil"
)

// RouterOptions configures SetupRoutes.
type RouterOptions struct {
	AllowedOrigins []string
	InternalToken  string
}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, hc *HealthChecker, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Organization-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/ready", hc.HandleReadiness)
	}

	r.Route("/api/campaigns", func(r chi.Router) {
		r.Use(RequireOrg)

		r.Get("/", h.ListCampaigns)
		r.Post("/", h.CreateCampaign)
		r.Get("/presets", h.ListPresets)
		r.Get("/templates", h.ListTemplates)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/active", h.ActiveRuns)
			r.Get("/{runID}/recent_recipients", h.RecentRecipients)
			r.Post("/{runID}/pause", h.PauseRun)
			r.Post("/{runID}/resume", h.ResumeRun)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetCampaign)
			r.Put("/audience", h.UpdateAudience)
			r.Patch("/message", h.UpdateMessage)
			r.Post("/schedule", h.ScheduleCampaign)
			r.Post("/estimate", h.EstimateAudience)
			r.Post("/archive", h.ArchiveCampaign)
			r.Post("/preview", h.PreviewMessage)
			r.Post("/launch", h.LaunchCampaign)
		})
	})

	// Collaborator callbacks.
	r.Route("/internal", func(r chi.Router) {
		r.Use(RequireInternalToken(opts.InternalToken))

		r.With(RequireOrg).Post("/runs/{runID}/complete", h.CompleteRun)
		r.With(RequireOrg).Post("/runs/{runID}/fail", h.FailRun)
		if h.events != nil {
			r.With(OptionalOrg).Post("/events", h.ReceiveEvent)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "not_found")
	})
	return r
}
