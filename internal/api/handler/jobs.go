package handler

import (
	"net/http"

	"github.com/jobdeck/swipequeue/internal/api/response"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// NewCachedJobsHandler returns the handler for GET /api/v1/jobs/cached: the
// snapshot cache as a job-URL-keyed map. The data is advisory; the UI uses
// it only when the worker has not returned fresher fields.
func NewCachedJobsHandler(snaps Snapshots) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := snaps.All()
		byURL := make(map[string]models.JobSnapshot, len(all))
		for _, snap := range all {
			byURL[snap.JobURL] = snap
		}
		response.JSON(w, byURL)
	}
}
