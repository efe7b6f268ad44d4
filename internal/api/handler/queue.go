package handler

import (
	"net/http"

	"github.com/jobdeck/swipequeue/internal/api/response"
)

// NewQueueStatsHandler returns the handler for GET /api/v1/queue/stats. The
// stats are the worker's, recomputed on every call for the active profile's
// automation; nothing is cached or streamed.
func NewQueueStatsHandler(s Session, q Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, _, ok := s.ActiveProfile()
		if !ok {
			response.Error(w, http.StatusConflict, "NO_PROFILE", "No profile is selected", nil)
			return
		}

		stats, err := q.QueueStats(r.Context(), profileID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		response.JSON(w, stats)
	}
}

// NewPendingCountHandler returns the handler for GET
// /api/v1/queue/pending-count: the locally tracked count of URLs the worker
// has not acknowledged. No network round trip; this backs the "queued" badge.
func NewPendingCountHandler(q Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := q.PendingCount(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		response.JSON(w, pendingCountResponse{PendingURLs: count})
	}
}

// NewSyncHandler returns the handler for POST /api/v1/queue/sync. It re-
// attempts every locally tracked pending URL and is safe to call on every
// app foreground; acknowledged entries are skipped.
func NewSyncHandler(q Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := q.SyncPendingURLs(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		response.JSON(w, res)
	}
}

type pendingCountResponse struct {
	PendingURLs int `json:"pending_urls"`
}
