package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jobdeck/swipequeue/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access interface for everything that must survive a
// restart: the automation-by-profile map, the not-yet-acknowledged job list,
// and the snapshot cache. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	UpsertAutomationRef(ctx context.Context, ref *models.AutomationRef) error
	GetAutomationRef(ctx context.Context, profileID uuid.UUID) (*models.AutomationRef, error)
	ListAutomationRefs(ctx context.Context) ([]*models.AutomationRef, error)
	DeleteAutomationRefs(ctx context.Context, profileIDs []uuid.UUID) error

	UpsertPendingJob(ctx context.Context, job *models.PendingJob) error
	DeletePendingJob(ctx context.Context, profileID uuid.UUID, jobURL string) error
	ListPendingJobs(ctx context.Context) ([]*models.PendingJob, error)
	CountPendingJobs(ctx context.Context) (int, error)
	DeletePendingJobsForProfiles(ctx context.Context, profileIDs []uuid.UUID) error

	UpsertJobSnapshot(ctx context.Context, snap *models.JobSnapshot) error
	ListJobSnapshots(ctx context.Context) ([]*models.JobSnapshot, error)
	DeleteJobSnapshots(ctx context.Context, jobURLs []string) error
}
