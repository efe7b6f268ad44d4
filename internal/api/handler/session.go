package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/jobdeck/swipequeue/internal/api/response"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// NewSelectProfileHandler returns the handler for POST /api/v1/session/profile.
// Selecting a profile flushes the previous profile's pending batch before the
// call returns; the flush outcome rides along in the response.
func NewSelectProfileHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProfileID   string `json:"profile_id"`
			ProfileName string `json:"profile_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.ProfileID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "profile_id is required", nil)
			return
		}
		profileID, err := uuid.Parse(req.ProfileID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "profile_id must be a valid UUID", nil)
			return
		}

		flushed, err := s.SelectProfile(r.Context(), profileID, req.ProfileName)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		response.JSON(w, selectProfileResponse{
			ProfileID:     profileID,
			ProfileName:   req.ProfileName,
			PreviousBatch: flushed,
		})
	}
}

// NewResumeSettingsHandler returns the handler for PUT
// /api/v1/session/resume-settings. The settings apply to every job of
// subsequent flushes, including a batch already accumulating.
func NewResumeSettingsHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.ResumeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		s.SetResumeSettings(req)
		response.JSON(w, s.ResumeSettings())
	}
}

type selectProfileResponse struct {
	ProfileID     uuid.UUID `json:"profile_id"`
	ProfileName   string    `json:"profile_name"`
	PreviousBatch any       `json:"previous_batch"`
}
