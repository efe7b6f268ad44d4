package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobdeck/swipequeue/internal/workerapi"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// EnqueueCall records one EnqueueJob invocation.
type EnqueueCall struct {
	AutomationID uuid.UUID
	Job          models.PendingJob
}

// Worker is a workerapi.Client test double. Unset funcs fall back to a
// well-behaved worker: automations are created, submissions accepted.
type Worker struct {
	mu sync.Mutex

	CreateAutomationFunc func(ctx context.Context, profileID uuid.UUID, profileName string) (*models.AutomationRef, error)
	EnqueueJobFunc       func(ctx context.Context, automationID uuid.UUID, job *models.PendingJob) (*workerapi.EnqueueResult, error)
	QueueStatsFunc       func(ctx context.Context, automationID uuid.UUID) (*models.QueueStats, error)
	ListQueueEntriesFunc func(ctx context.Context, automationID uuid.UUID) ([]models.QueueEntry, error)
	ReadyFunc            func(ctx context.Context) error

	createdProfiles []uuid.UUID
	enqueued        []EnqueueCall
}

func (w *Worker) CreateAutomation(ctx context.Context, profileID uuid.UUID, profileName string) (*models.AutomationRef, error) {
	w.mu.Lock()
	w.createdProfiles = append(w.createdProfiles, profileID)
	w.mu.Unlock()

	if w.CreateAutomationFunc != nil {
		return w.CreateAutomationFunc(ctx, profileID, profileName)
	}
	return &models.AutomationRef{
		AutomationID: uuid.New(),
		ProfileID:    profileID,
		ProfileName:  profileName,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (w *Worker) EnqueueJob(ctx context.Context, automationID uuid.UUID, job *models.PendingJob) (*workerapi.EnqueueResult, error) {
	w.mu.Lock()
	w.enqueued = append(w.enqueued, EnqueueCall{AutomationID: automationID, Job: *job})
	w.mu.Unlock()

	if w.EnqueueJobFunc != nil {
		return w.EnqueueJobFunc(ctx, automationID, job)
	}
	return &workerapi.EnqueueResult{
		Entry: models.QueueEntry{
			AutomationID: automationID,
			JobURL:       job.JobURL,
			Status:       models.QueueStatusPending,
			EnqueuedAt:   time.Now().UTC(),
		},
	}, nil
}

func (w *Worker) QueueStats(ctx context.Context, automationID uuid.UUID) (*models.QueueStats, error) {
	if w.QueueStatsFunc != nil {
		return w.QueueStatsFunc(ctx, automationID)
	}
	return &models.QueueStats{}, nil
}

func (w *Worker) ListQueueEntries(ctx context.Context, automationID uuid.UUID) ([]models.QueueEntry, error) {
	if w.ListQueueEntriesFunc != nil {
		return w.ListQueueEntriesFunc(ctx, automationID)
	}
	return []models.QueueEntry{}, nil
}

func (w *Worker) Ready(ctx context.Context) error {
	if w.ReadyFunc != nil {
		return w.ReadyFunc(ctx)
	}
	return nil
}

// CreatedProfiles returns the profile IDs passed to CreateAutomation, in call order.
func (w *Worker) CreatedProfiles() []uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]uuid.UUID, len(w.createdProfiles))
	copy(out, w.createdProfiles)
	return out
}

// Enqueued returns recorded EnqueueJob calls, in call order.
func (w *Worker) Enqueued() []EnqueueCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]EnqueueCall, len(w.enqueued))
	copy(out, w.enqueued)
	return out
}

// EnqueuedURLs returns just the job URLs of recorded EnqueueJob calls.
func (w *Worker) EnqueuedURLs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.enqueued))
	for _, call := range w.enqueued {
		out = append(out, call.Job.JobURL)
	}
	return out
}

// Compile-time check that Worker implements workerapi.Client.
var _ workerapi.Client = (*Worker)(nil)
