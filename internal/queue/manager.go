// Package queue owns per-profile automation references and turns accumulated
// swipes into durable, idempotent queue entries on the remote worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jobdeck/swipequeue/internal/observability"
	"github.com/jobdeck/swipequeue/internal/store"
	"github.com/jobdeck/swipequeue/internal/workerapi"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// Sentinel errors for submission validation. Both are permanent: retrying the
// same job cannot succeed without a change upstream.
var (
	ErrNoProfile  = errors.New("no profile selected")
	ErrInvalidURL = errors.New("job has no usable url")
)

// SubmitResult reports the outcome of one job submission.
type SubmitResult struct {
	AutomationID  uuid.UUID
	AlreadyQueued bool
}

// SyncResult summarizes one pass over the locally tracked pending jobs.
type SyncResult struct {
	Submitted     int `json:"submitted"`
	AlreadyQueued int `json:"already_queued"`
	Failed        int `json:"failed"`
	Dropped       int `json:"dropped"`
}

// CleanupResult reports what a stale-profile cleanup removed.
type CleanupResult struct {
	ProfilesRemoved int `json:"profiles_removed"`
	JobsDropped     int `json:"jobs_dropped"`
}

// defaultMaxAttempts bounds how many failed passes a pending row survives
// before the sync drops it.
const defaultMaxAttempts = 3

// Option configures a Manager.
type Option func(*Manager)

// WithMaxAttempts sets the retry cap applied to pending rows during sync.
// Non-positive values keep the default.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// Manager tracks one automation per profile and submits jobs to the worker.
// Submission is idempotent: an in-memory acked set short-circuits resubmission
// within a process lifetime, and the worker's (automation, job URL) uniqueness
// makes resubmission after a restart a no-op.
type Manager struct {
	store  store.Store
	worker workerapi.Client

	// group collapses concurrent automation creations for the same profile
	// into a single worker call.
	group singleflight.Group

	maxAttempts int

	mu          sync.Mutex
	automations map[uuid.UUID]models.AutomationRef
	acked       map[uuid.UUID]map[string]struct{}
	initialized bool
}

// NewManager creates a Manager. Call Initialize before use.
func NewManager(st store.Store, worker workerapi.Client, opts ...Option) *Manager {
	m := &Manager{
		store:       st,
		worker:      worker,
		maxAttempts: defaultMaxAttempts,
		automations: make(map[uuid.UUID]models.AutomationRef),
		acked:       make(map[uuid.UUID]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize hydrates automation references from the store for warm starts.
// It is idempotent; only the first call loads.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	refs, err := m.store.ListAutomationRefs(ctx)
	if err != nil {
		return fmt.Errorf("loading automation refs: %w", err)
	}

	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	for _, ref := range refs {
		m.automations[ref.ProfileID] = *ref
	}
	m.initialized = true
	m.mu.Unlock()

	m.refreshPendingGauge(ctx)
	slog.Info("queue manager initialized", "automation_refs", len(refs))
	return nil
}

// AutomationForProfile is a pure lookup of the cached automation reference.
// It never creates one as a side effect.
func (m *Manager) AutomationForProfile(profileID uuid.UUID) (*models.AutomationRef, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.automations[profileID]
	if !ok {
		return nil, false
	}
	out := ref
	return &out, true
}

// SubmitJob submits one job to the worker, creating the profile's automation
// on first use. Already-acknowledged URLs are answered locally without a
// network call. A stale automation reference (the worker no longer knows it)
// is dropped so the next attempt re-creates lazily.
func (m *Manager) SubmitJob(ctx context.Context, job *models.PendingJob) (*SubmitResult, error) {
	if job.ProfileID == uuid.Nil {
		return nil, ErrNoProfile
	}
	if strings.TrimSpace(job.JobURL) == "" {
		return nil, ErrInvalidURL
	}

	ref, err := m.ensureAutomation(ctx, job.ProfileID, job.ProfileName)
	if err != nil {
		return nil, err
	}

	if m.isAcked(ref.AutomationID, job.JobURL) {
		// The row can linger when a previous delete failed.
		if err := m.store.DeletePendingJob(ctx, job.ProfileID, job.JobURL); err != nil {
			slog.Warn("acknowledged pending job not cleared", "job_url", job.JobURL, "error", err)
		}
		m.refreshPendingGauge(ctx)
		observability.JobsSubmitted.WithLabelValues("already_queued").Inc()
		return &SubmitResult{AutomationID: ref.AutomationID, AlreadyQueued: true}, nil
	}

	res, err := m.worker.EnqueueJob(ctx, ref.AutomationID, job)
	if err != nil {
		if errors.Is(err, workerapi.ErrAutomationNotFound) {
			m.invalidateAutomation(ctx, job.ProfileID, ref.AutomationID)
		}
		return nil, err
	}

	m.markAcked(ref.AutomationID, job.JobURL)
	if err := m.store.DeletePendingJob(ctx, job.ProfileID, job.JobURL); err != nil {
		slog.Warn("acknowledged pending job not cleared", "job_url", job.JobURL, "error", err)
	}
	m.refreshPendingGauge(ctx)

	outcome := "created"
	if res.AlreadyQueued {
		outcome = "already_queued"
	}
	observability.JobsSubmitted.WithLabelValues(outcome).Inc()
	return &SubmitResult{AutomationID: ref.AutomationID, AlreadyQueued: res.AlreadyQueued}, nil
}

// RecordPending persists a job so it survives restarts while waiting for a
// flush or an acknowledgment. Re-recording a (profile, URL) pair keeps its
// original queue position.
func (m *Manager) RecordPending(ctx context.Context, job *models.PendingJob) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	if err := m.store.UpsertPendingJob(ctx, job); err != nil {
		return fmt.Errorf("recording pending job: %w", err)
	}
	m.refreshPendingGauge(ctx)
	return nil
}

// DiscardPending drops a pending job that will never be submitted.
func (m *Manager) DiscardPending(ctx context.Context, profileID uuid.UUID, jobURL string) error {
	if err := m.store.DeletePendingJob(ctx, profileID, jobURL); err != nil {
		return fmt.Errorf("discarding pending job: %w", err)
	}
	m.refreshPendingGauge(ctx)
	return nil
}

// QueueStats returns the worker's queue snapshot for a profile's automation.
// Stats are recomputed on every call, never cached. A profile with no
// automation yet has an empty queue.
func (m *Manager) QueueStats(ctx context.Context, profileID uuid.UUID) (*models.QueueStats, error) {
	ref, ok := m.AutomationForProfile(profileID)
	if !ok {
		return &models.QueueStats{}, nil
	}

	stats, err := m.worker.QueueStats(ctx, ref.AutomationID)
	if err != nil {
		if errors.Is(err, workerapi.ErrAutomationNotFound) {
			m.invalidateAutomation(ctx, profileID, ref.AutomationID)
			return &models.QueueStats{}, nil
		}
		return nil, err
	}
	return stats, nil
}

// PendingCount is the local count of URLs not yet acknowledged by the worker.
// It never makes a network call.
func (m *Manager) PendingCount(ctx context.Context) (int, error) {
	return m.store.CountPendingJobs(ctx)
}

// SyncPendingURLs re-attempts submission of every locally tracked pending
// job. It is idempotent: acknowledged entries are skipped or answered as
// no-ops, transient failures leave the row in place for the next pass, and
// permanently rejected rows are dropped. Each failed pass increments the
// row's stored attempt count; a row that reaches the cap is dropped so an
// unreachable job cannot be resubmitted forever.
func (m *Manager) SyncPendingURLs(ctx context.Context) (*SyncResult, error) {
	jobs, err := m.store.ListPendingJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pending jobs: %w", err)
	}

	res := &SyncResult{}
	for _, job := range jobs {
		sub, err := m.SubmitJob(ctx, job)
		switch {
		case err == nil:
			if sub.AlreadyQueued {
				res.AlreadyQueued++
			} else {
				res.Submitted++
			}
		case IsPermanent(err):
			res.Dropped++
			observability.JobsDropped.WithLabelValues(dropReason(err)).Inc()
			if derr := m.DiscardPending(ctx, job.ProfileID, job.JobURL); derr != nil {
				slog.Warn("rejected pending job not cleared", "job_url", job.JobURL, "error", derr)
			}
			slog.Warn("dropping pending job", "job_url", job.JobURL, "profile_id", job.ProfileID, "error", err)
		default:
			job.Attempts++
			if job.Attempts >= m.maxAttempts {
				res.Dropped++
				observability.JobsDropped.WithLabelValues("retries_exhausted").Inc()
				if derr := m.DiscardPending(ctx, job.ProfileID, job.JobURL); derr != nil {
					slog.Warn("exhausted pending job not cleared", "job_url", job.JobURL, "error", derr)
				}
				slog.Warn("dropping pending job after repeated failures",
					"job_url", job.JobURL, "profile_id", job.ProfileID, "attempts", job.Attempts, "error", err)
				continue
			}
			res.Failed++
			if uerr := m.store.UpsertPendingJob(ctx, job); uerr != nil {
				slog.Warn("retry count not persisted", "job_url", job.JobURL, "error", uerr)
			}
		}
	}

	slog.Info("pending url sync complete",
		"submitted", res.Submitted,
		"already_queued", res.AlreadyQueued,
		"failed", res.Failed,
		"dropped", res.Dropped)
	return res, nil
}

// CleanupInvalidProfiles removes automation references and pending jobs for
// any profile not in validIDs. It only prunes local state; no worker call is
// made.
func (m *Manager) CleanupInvalidProfiles(ctx context.Context, validIDs []uuid.UUID) (*CleanupResult, error) {
	valid := make(map[uuid.UUID]struct{}, len(validIDs))
	for _, id := range validIDs {
		valid[id] = struct{}{}
	}

	refs, err := m.store.ListAutomationRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing automation refs: %w", err)
	}
	jobs, err := m.store.ListPendingJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pending jobs: %w", err)
	}

	staleProfiles := make(map[uuid.UUID]struct{})
	var staleAutomations []uuid.UUID
	for _, ref := range refs {
		if _, ok := valid[ref.ProfileID]; !ok {
			staleProfiles[ref.ProfileID] = struct{}{}
			staleAutomations = append(staleAutomations, ref.AutomationID)
		}
	}

	dropped := 0
	for _, job := range jobs {
		if _, ok := valid[job.ProfileID]; !ok {
			staleProfiles[job.ProfileID] = struct{}{}
			dropped++
		}
	}

	if len(staleProfiles) == 0 {
		return &CleanupResult{}, nil
	}

	stale := make([]uuid.UUID, 0, len(staleProfiles))
	for id := range staleProfiles {
		stale = append(stale, id)
	}

	if err := m.store.DeleteAutomationRefs(ctx, stale); err != nil {
		return nil, fmt.Errorf("deleting automation refs: %w", err)
	}
	if err := m.store.DeletePendingJobsForProfiles(ctx, stale); err != nil {
		return nil, fmt.Errorf("deleting pending jobs: %w", err)
	}

	m.mu.Lock()
	for _, id := range stale {
		delete(m.automations, id)
	}
	for _, id := range staleAutomations {
		delete(m.acked, id)
	}
	m.mu.Unlock()

	if dropped > 0 {
		observability.JobsDropped.WithLabelValues("stale_profile").Add(float64(dropped))
	}
	m.refreshPendingGauge(ctx)

	slog.Info("cleaned up stale profiles", "profiles", len(stale), "jobs_dropped", dropped)
	return &CleanupResult{ProfilesRemoved: len(stale), JobsDropped: dropped}, nil
}

// ensureAutomation returns the profile's automation, creating it on the
// worker on first use. Concurrent callers for the same profile share one
// creation.
func (m *Manager) ensureAutomation(ctx context.Context, profileID uuid.UUID, profileName string) (*models.AutomationRef, error) {
	if ref, ok := m.AutomationForProfile(profileID); ok {
		return ref, nil
	}

	v, err, _ := m.group.Do(profileID.String(), func() (any, error) {
		if ref, ok := m.AutomationForProfile(profileID); ok {
			return ref, nil
		}

		ref, err := m.store.GetAutomationRef(ctx, profileID)
		if err == nil {
			m.rememberAutomation(ref)
			return ref, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("loading automation ref: %w", err)
		}

		created, err := m.worker.CreateAutomation(ctx, profileID, profileName)
		if err != nil {
			return nil, err
		}
		if err := m.store.UpsertAutomationRef(ctx, created); err != nil {
			// The worker already owns it; keep it usable in memory and let a
			// later submission retry persistence via a fresh lookup.
			slog.Warn("automation ref not persisted", "profile_id", profileID, "error", err)
		}
		m.rememberAutomation(created)
		slog.Info("created automation",
			"automation_id", created.AutomationID,
			"profile_id", profileID,
			"profile_name", profileName)
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.AutomationRef), nil
}

func (m *Manager) rememberAutomation(ref *models.AutomationRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.automations[ref.ProfileID] = *ref
}

// invalidateAutomation drops a reference the worker no longer recognizes so
// the next submission re-creates it.
func (m *Manager) invalidateAutomation(ctx context.Context, profileID, automationID uuid.UUID) {
	m.mu.Lock()
	if ref, ok := m.automations[profileID]; ok && ref.AutomationID == automationID {
		delete(m.automations, profileID)
	}
	delete(m.acked, automationID)
	m.mu.Unlock()

	if err := m.store.DeleteAutomationRefs(ctx, []uuid.UUID{profileID}); err != nil {
		slog.Warn("stale automation ref not removed from store", "profile_id", profileID, "error", err)
	}
	slog.Info("dropped stale automation reference", "profile_id", profileID, "automation_id", automationID)
}

func (m *Manager) isAcked(automationID uuid.UUID, jobURL string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.acked[automationID][jobURL]
	return ok
}

func (m *Manager) markAcked(automationID uuid.UUID, jobURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls, ok := m.acked[automationID]
	if !ok {
		urls = make(map[string]struct{})
		m.acked[automationID] = urls
	}
	urls[jobURL] = struct{}{}
}

func (m *Manager) refreshPendingGauge(ctx context.Context) {
	count, err := m.store.CountPendingJobs(ctx)
	if err != nil {
		return
	}
	observability.PendingJobs.Set(float64(count))
}

// IsPermanent reports whether a submission error cannot succeed on retry.
// Everything else, including a stale automation reference, is worth another
// attempt.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNoProfile) ||
		errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, workerapi.ErrWorkerRejected)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrNoProfile):
		return "stale_profile"
	default:
		return "rejected"
	}
}
