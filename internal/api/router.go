package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/jobdeck/swipequeue/internal/api/middleware"
	"github.com/jobdeck/swipequeue/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit
	Metrics   http.Handler

	HealthHandler          http.HandlerFunc
	SelectProfileHandler   http.HandlerFunc
	ResumeSettingsHandler  http.HandlerFunc
	SwipeHandler           http.HandlerFunc
	FlushHandler           http.HandlerFunc
	QueueStatsHandler      http.HandlerFunc
	PendingCountHandler    http.HandlerFunc
	SyncHandler            http.HandlerFunc
	CachedJobsHandler      http.HandlerFunc
	CleanupProfilesHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Unlimited: health probes and metrics scrapes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/session/profile", orNotImplemented(deps.SelectProfileHandler))
		r.Put("/api/v1/session/resume-settings", orNotImplemented(deps.ResumeSettingsHandler))

		r.Post("/api/v1/swipes", orNotImplemented(deps.SwipeHandler))
		r.Post("/api/v1/flush", orNotImplemented(deps.FlushHandler))

		r.Get("/api/v1/queue/stats", orNotImplemented(deps.QueueStatsHandler))
		r.Get("/api/v1/queue/pending-count", orNotImplemented(deps.PendingCountHandler))
		r.Post("/api/v1/queue/sync", orNotImplemented(deps.SyncHandler))

		r.Get("/api/v1/jobs/cached", orNotImplemented(deps.CachedJobsHandler))
		r.Post("/api/v1/profiles/cleanup", orNotImplemented(deps.CleanupProfilesHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
