// Package handler holds the HTTP handlers for the swipe pipeline API. Each
// handler validates by hand, calls one service operation, and maps domain
// errors onto the response envelope.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/jobdeck/swipequeue/internal/api/response"
	"github.com/jobdeck/swipequeue/internal/batch"
	"github.com/jobdeck/swipequeue/internal/queue"
	"github.com/jobdeck/swipequeue/internal/session"
	"github.com/jobdeck/swipequeue/internal/workerapi"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// Session is the slice of the swipe session the handlers drive.
type Session interface {
	SelectProfile(ctx context.Context, profileID uuid.UUID, profileName string) (*batch.FlushResult, error)
	ActiveProfile() (uuid.UUID, string, bool)
	SetResumeSettings(rs models.ResumeSettings)
	ResumeSettings() models.ResumeSettings
	RecordSwipe(ctx context.Context, sw session.Swipe) error
	Flush(ctx context.Context) (*batch.FlushResult, error)
}

// Queue is the slice of the queue manager the handlers drive.
type Queue interface {
	QueueStats(ctx context.Context, profileID uuid.UUID) (*models.QueueStats, error)
	PendingCount(ctx context.Context) (int, error)
	SyncPendingURLs(ctx context.Context) (*queue.SyncResult, error)
	CleanupInvalidProfiles(ctx context.Context, validIDs []uuid.UUID) (*queue.CleanupResult, error)
}

// Snapshots is the read side of the snapshot cache.
type Snapshots interface {
	All() []models.JobSnapshot
}

// writeDomainError maps pipeline errors to HTTP status codes. NO_PROFILE and
// INVALID_URL are the caller's problem; an unreachable worker is reported as
// a bad gateway so the UI can keep swiping and rely on the retry machinery.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrNoProfile):
		response.Error(w, http.StatusConflict, "NO_PROFILE",
			"No profile is selected", nil)
	case errors.Is(err, queue.ErrInvalidURL):
		response.Error(w, http.StatusUnprocessableEntity, "INVALID_URL",
			"Job has neither an apply URL nor a listing URL", nil)
	case errors.Is(err, session.ErrInvalidDirection):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"direction must be left or right", nil)
	case errors.Is(err, batch.ErrClosed):
		response.Error(w, http.StatusServiceUnavailable, "SHUTTING_DOWN",
			"The server is shutting down", nil)
	case workerapi.IsTransient(err):
		response.Error(w, http.StatusBadGateway, "WORKER_UNAVAILABLE",
			"The automation worker is not reachable", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
