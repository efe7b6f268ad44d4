package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/jobdeck/swipequeue/internal/api/response"
)

// NewCleanupProfilesHandler returns the handler for POST
// /api/v1/profiles/cleanup. The body lists every profile that still exists;
// automation references and pending jobs for any other profile are pruned
// from local state. No worker call is made.
func NewCleanupProfilesHandler(q Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ValidProfileIDs []string `json:"valid_profile_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.ValidProfileIDs == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "valid_profile_ids is required", nil)
			return
		}

		validIDs := make([]uuid.UUID, 0, len(req.ValidProfileIDs))
		for _, raw := range req.ValidProfileIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"valid_profile_ids must contain valid UUIDs", map[string]string{"invalid": raw})
				return
			}
			validIDs = append(validIDs, id)
		}

		res, err := q.CleanupInvalidProfiles(r.Context(), validIDs)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		response.JSON(w, res)
	}
}
