package handler

import (
	"encoding/json"
	"net/http"

	"github.com/jobdeck/swipequeue/internal/api/response"
	"github.com/jobdeck/swipequeue/internal/session"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// NewSwipeHandler returns the handler for POST /api/v1/swipes. The call is
// local only: a right swipe joins the active profile's batch and both
// directions update the snapshot cache. Submission happens later, on flush.
func NewSwipeHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JobID      string `json:"job_id"`
			JobURL     string `json:"job_url"`
			ListingURL string `json:"listing_url"`
			Title      string `json:"title"`
			Company    string `json:"company"`
			Source     string `json:"source"`
			Direction  string `json:"direction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Direction == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "direction is required", nil)
			return
		}

		err := s.RecordSwipe(r.Context(), session.Swipe{
			JobID:      req.JobID,
			ApplyURL:   req.JobURL,
			ListingURL: req.ListingURL,
			Title:      req.Title,
			Company:    req.Company,
			Source:     req.Source,
			Direction:  req.Direction,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		response.Accepted(w, swipeResponse{
			JobID:     req.JobID,
			Direction: req.Direction,
			Batched:   req.Direction == models.SwipeDirectionRight,
		})
	}
}

type swipeResponse struct {
	JobID     string `json:"job_id"`
	Direction string `json:"direction"`
	Batched   bool   `json:"batched"`
}
