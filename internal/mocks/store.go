// Package mocks provides in-memory test doubles shared across package tests.
package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jobdeck/swipequeue/internal/store"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// Store is an in-memory store.Store with per-method error injection.
type Store struct {
	mu        sync.Mutex
	refs      map[uuid.UUID]models.AutomationRef
	pending   map[uuid.UUID]map[string]models.PendingJob
	snapshots map[string]models.JobSnapshot

	UpsertAutomationRefErr   error
	GetAutomationRefErr      error
	ListAutomationRefsErr    error
	DeleteAutomationRefsErr  error
	UpsertPendingJobErr      error
	DeletePendingJobErr      error
	ListPendingJobsErr       error
	CountPendingJobsErr      error
	DeletePendingProfilesErr error
	UpsertSnapshotErr        error
	ListSnapshotsErr         error
	DeleteSnapshotsErr       error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		refs:      make(map[uuid.UUID]models.AutomationRef),
		pending:   make(map[uuid.UUID]map[string]models.PendingJob),
		snapshots: make(map[string]models.JobSnapshot),
	}
}

func (s *Store) Ping(_ context.Context) error { return nil }
func (s *Store) Close() error                 { return nil }

func (s *Store) UpsertAutomationRef(_ context.Context, ref *models.AutomationRef) error {
	if s.UpsertAutomationRefErr != nil {
		return s.UpsertAutomationRefErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[ref.ProfileID] = *ref
	return nil
}

func (s *Store) GetAutomationRef(_ context.Context, profileID uuid.UUID) (*models.AutomationRef, error) {
	if s.GetAutomationRefErr != nil {
		return nil, s.GetAutomationRefErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[profileID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := ref
	return &out, nil
}

func (s *Store) ListAutomationRefs(_ context.Context) ([]*models.AutomationRef, error) {
	if s.ListAutomationRefsErr != nil {
		return nil, s.ListAutomationRefsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.AutomationRef, 0, len(s.refs))
	for _, ref := range s.refs {
		r := ref
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteAutomationRefs(_ context.Context, profileIDs []uuid.UUID) error {
	if s.DeleteAutomationRefsErr != nil {
		return s.DeleteAutomationRefsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range profileIDs {
		delete(s.refs, id)
	}
	return nil
}

func (s *Store) UpsertPendingJob(_ context.Context, job *models.PendingJob) error {
	if s.UpsertPendingJobErr != nil {
		return s.UpsertPendingJobErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byURL, ok := s.pending[job.ProfileID]
	if !ok {
		byURL = make(map[string]models.PendingJob)
		s.pending[job.ProfileID] = byURL
	}
	// Same contract as the SQL backends: a re-upsert keeps the original
	// enqueued_at so retries do not lose their queue position.
	stored := *job
	if prev, exists := byURL[job.JobURL]; exists {
		stored.EnqueuedAt = prev.EnqueuedAt
	}
	byURL[job.JobURL] = stored
	return nil
}

func (s *Store) DeletePendingJob(_ context.Context, profileID uuid.UUID, jobURL string) error {
	if s.DeletePendingJobErr != nil {
		return s.DeletePendingJobErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if byURL, ok := s.pending[profileID]; ok {
		delete(byURL, jobURL)
	}
	return nil
}

func (s *Store) ListPendingJobs(_ context.Context) ([]*models.PendingJob, error) {
	if s.ListPendingJobsErr != nil {
		return nil, s.ListPendingJobsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PendingJob
	for _, byURL := range s.pending {
		for _, job := range byURL {
			j := job
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out, nil
}

func (s *Store) CountPendingJobs(_ context.Context) (int, error) {
	if s.CountPendingJobsErr != nil {
		return 0, s.CountPendingJobsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, byURL := range s.pending {
		total += len(byURL)
	}
	return total, nil
}

func (s *Store) DeletePendingJobsForProfiles(_ context.Context, profileIDs []uuid.UUID) error {
	if s.DeletePendingProfilesErr != nil {
		return s.DeletePendingProfilesErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range profileIDs {
		delete(s.pending, id)
	}
	return nil
}

func (s *Store) UpsertJobSnapshot(_ context.Context, snap *models.JobSnapshot) error {
	if s.UpsertSnapshotErr != nil {
		return s.UpsertSnapshotErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.JobURL] = *snap
	return nil
}

func (s *Store) ListJobSnapshots(_ context.Context) ([]*models.JobSnapshot, error) {
	if s.ListSnapshotsErr != nil {
		return nil, s.ListSnapshotsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.JobSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		sn := snap
		out = append(out, &sn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CachedAt.Before(out[j].CachedAt) })
	return out, nil
}

func (s *Store) DeleteJobSnapshots(_ context.Context, jobURLs []string) error {
	if s.DeleteSnapshotsErr != nil {
		return s.DeleteSnapshotsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range jobURLs {
		delete(s.snapshots, u)
	}
	return nil
}

// PendingCount reports how many pending jobs are stored for a profile.
func (s *Store) PendingCount(profileID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[profileID])
}

// SnapshotCount reports how many snapshots are stored.
func (s *Store) SnapshotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)
