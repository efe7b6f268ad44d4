// Package session owns the per-process swipe state: the active profile, the
// resume settings, and one batch accumulator per profile. It is the only
// place profile switches happen, which is what keeps a job from ever being
// attributed to the wrong profile.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jobdeck/swipequeue/internal/batch"
	"github.com/jobdeck/swipequeue/internal/observability"
	"github.com/jobdeck/swipequeue/internal/queue"
	"github.com/jobdeck/swipequeue/internal/snapshot"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// ErrInvalidDirection is returned for a swipe that is neither left nor right.
var ErrInvalidDirection = errors.New("invalid swipe direction")

// Swipe is one swipe event from the deck. ApplyURL is preferred; ListingURL
// is the fallback when the posting has no direct apply link.
type Swipe struct {
	JobID      string
	ApplyURL   string
	ListingURL string
	Title      string
	Company    string
	Source     string
	Direction  string
}

// Session holds the swipe pipeline for one server process. Construct with
// New and tear down with Close; there is no package-level state.
type Session struct {
	queue     *queue.Manager
	snapshots *snapshot.Cache
	opts      batch.Options
	hooks     batch.Hooks

	mu           sync.Mutex
	activeID     uuid.UUID
	activeName   string
	accumulators map[uuid.UUID]*batch.Accumulator
	closed       bool

	// resume has its own lock because accumulators read it mid-flush, while
	// SelectProfile may be holding mu across that same flush.
	resumeMu sync.RWMutex
	resume   models.ResumeSettings
}

// New creates a Session. The hooks are passed through to every accumulator.
func New(qm *queue.Manager, snaps *snapshot.Cache, opts batch.Options, hooks batch.Hooks) *Session {
	return &Session{
		queue:        qm,
		snapshots:    snaps,
		opts:         opts,
		hooks:        hooks,
		accumulators: make(map[uuid.UUID]*batch.Accumulator),
	}
}

// SelectProfile makes profileID the active profile. If another profile was
// active and had batched jobs, that batch is flushed before the switch takes
// effect, debounce window or not; no swipe is accepted for the new profile
// until the flush has finished. The returned result describes that flush.
//
// The flush happens with the session lock held. That is deliberate: swipes
// arriving during the switch block until the old profile's batch is on its
// way, which is the ordering the pipeline promises.
func (s *Session) SelectProfile(ctx context.Context, profileID uuid.UUID, profileName string) (*batch.FlushResult, error) {
	if profileID == uuid.Nil {
		return nil, queue.ErrNoProfile
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, batch.ErrClosed
	}

	if s.activeID == profileID {
		s.activeName = profileName
		return &batch.FlushResult{}, nil
	}

	res := &batch.FlushResult{}
	if prev, ok := s.accumulators[s.activeID]; ok && s.activeID != uuid.Nil {
		flushed, err := prev.Flush(ctx, batch.TriggerProfileSwitch)
		if flushed != nil {
			res = flushed
		}
		if err != nil {
			// Transient failures stay batched under the old profile and the
			// backoff timer will retry them; the switch itself proceeds.
			slog.Warn("flush on profile switch incomplete",
				"previous_profile_id", s.activeID, "error", err)
		}
	}

	s.activeID = profileID
	s.activeName = profileName
	s.accumulatorLocked(profileID, profileName)

	slog.Info("profile selected", "profile_id", profileID, "profile_name", profileName)
	return res, nil
}

// ActiveProfile returns the currently selected profile, if any.
func (s *Session) ActiveProfile() (uuid.UUID, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == uuid.Nil {
		return uuid.Nil, "", false
	}
	return s.activeID, s.activeName, true
}

// SetResumeSettings replaces the resume settings. They are read at flush
// time, so a change made while a batch is pending applies to every job in
// that batch.
func (s *Session) SetResumeSettings(rs models.ResumeSettings) {
	s.resumeMu.Lock()
	defer s.resumeMu.Unlock()
	s.resume = rs
}

// ResumeSettings returns the current resume settings.
func (s *Session) ResumeSettings() models.ResumeSettings {
	s.resumeMu.RLock()
	defer s.resumeMu.RUnlock()
	return s.resume
}

// RecordSwipe handles one swipe event. Both directions write the snapshot
// cache so the deck can re-render the job offline; only a right swipe joins
// the active profile's batch. The call never waits on the worker.
func (s *Session) RecordSwipe(ctx context.Context, sw Swipe) error {
	if sw.Direction != models.SwipeDirectionRight && sw.Direction != models.SwipeDirectionLeft {
		return ErrInvalidDirection
	}

	jobURL := strings.TrimSpace(sw.ApplyURL)
	if jobURL == "" {
		jobURL = strings.TrimSpace(sw.ListingURL)
	}
	if jobURL == "" {
		return queue.ErrInvalidURL
	}

	job := models.SwipedJob{
		JobID:   sw.JobID,
		JobURL:  jobURL,
		Title:   sw.Title,
		Company: sw.Company,
		Source:  sw.Source,
	}

	observability.Swipes.WithLabelValues(sw.Direction).Inc()

	// Snapshot first so the metadata survives even if the swipe is rejected
	// below. A store failure is logged, never surfaced to the swiper.
	if err := s.snapshots.Put(ctx, job); err != nil {
		slog.Warn("job snapshot not persisted", "job_url", jobURL, "error", err)
	}

	if sw.Direction == models.SwipeDirectionLeft {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return batch.ErrClosed
	}
	if s.activeID == uuid.Nil {
		s.mu.Unlock()
		return queue.ErrNoProfile
	}
	acc := s.accumulatorLocked(s.activeID, s.activeName)
	s.mu.Unlock()

	return acc.Add(ctx, job)
}

// Flush submits the active profile's pending batch immediately.
func (s *Session) Flush(ctx context.Context) (*batch.FlushResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, batch.ErrClosed
	}
	if s.activeID == uuid.Nil {
		s.mu.Unlock()
		return nil, queue.ErrNoProfile
	}
	acc := s.accumulatorLocked(s.activeID, s.activeName)
	s.mu.Unlock()

	return acc.Flush(ctx, batch.TriggerManual)
}

// Close force-flushes every profile's pending batch and stops all timers.
// Jobs the worker does not accept in time stay in the pending-jobs table and
// are reconciled by the sync pass on the next start.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	accs := make([]*batch.Accumulator, 0, len(s.accumulators))
	for _, acc := range s.accumulators {
		accs = append(accs, acc)
	}
	s.mu.Unlock()

	var errs []error
	for _, acc := range accs {
		if _, err := acc.Flush(ctx, batch.TriggerShutdown); err != nil {
			errs = append(errs, err)
		}
		acc.Stop()
	}
	return errors.Join(errs...)
}

// accumulatorLocked returns the profile's accumulator, creating it on first
// use. Callers must hold mu.
func (s *Session) accumulatorLocked(profileID uuid.UUID, profileName string) *batch.Accumulator {
	if acc, ok := s.accumulators[profileID]; ok {
		return acc
	}
	acc := batch.New(profileID, profileName, s.queue, s.ResumeSettings, s.opts, s.hooks)
	s.accumulators[profileID] = acc
	return acc
}
