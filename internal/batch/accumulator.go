// Package batch turns a burst of right-swipes into one submission per quiet
// period. The accumulator owns the debounce timer and the retry bookkeeping
// for jobs the worker has not accepted yet; actual submission goes through
// the queue manager.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jobdeck/swipequeue/internal/observability"
	"github.com/jobdeck/swipequeue/internal/queue"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// ErrClosed is returned by Add after the accumulator has been stopped.
var ErrClosed = errors.New("accumulator closed")

// Trigger identifies what caused a flush.
type Trigger string

const (
	TriggerManual        Trigger = "manual"
	TriggerDebounce      Trigger = "debounce"
	TriggerProfileSwitch Trigger = "profile_switch"
	TriggerBatchSize     Trigger = "batch_size"
	TriggerBatchAge      Trigger = "batch_age"
	TriggerShutdown      Trigger = "shutdown"
)

// Submitter is the slice of the queue manager the accumulator needs.
type Submitter interface {
	SubmitJob(ctx context.Context, job *models.PendingJob) (*queue.SubmitResult, error)
	RecordPending(ctx context.Context, job *models.PendingJob) error
	DiscardPending(ctx context.Context, profileID uuid.UUID, jobURL string) error
}

// Options tune debounce and retry behavior. Zero values fall back to the
// defaults below.
type Options struct {
	DebounceInterval time.Duration
	MaxAttempts      int
	MaxBatchSize     int
	MaxBatchAge      time.Duration
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

const (
	defaultDebounceInterval = 120 * time.Second
	defaultMaxAttempts      = 3
	defaultMaxBatchSize     = 25
	defaultMaxBatchAge      = 10 * time.Minute
	defaultRetryBackoffBase = 5 * time.Second
	defaultRetryBackoffMax  = 80 * time.Second
)

func (o Options) withDefaults() Options {
	if o.DebounceInterval <= 0 {
		o.DebounceInterval = defaultDebounceInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = defaultMaxBatchSize
	}
	if o.MaxBatchAge <= 0 {
		o.MaxBatchAge = defaultMaxBatchAge
	}
	if o.RetryBackoffBase <= 0 {
		o.RetryBackoffBase = defaultRetryBackoffBase
	}
	if o.RetryBackoffMax < o.RetryBackoffBase {
		o.RetryBackoffMax = defaultRetryBackoffMax
	}
	return o
}

// Hooks are optional reporting callbacks. They are invoked after a flush and
// must not be relied on for correctness; the FlushResult carries the same
// information.
type Hooks struct {
	OnBatchSent  func(automationID uuid.UUID, jobCount int)
	OnBatchError func(err error)
}

// FlushResult summarizes one flush.
type FlushResult struct {
	AutomationID  uuid.UUID `json:"automation_id,omitempty"`
	Submitted     int       `json:"submitted"`
	AlreadyQueued int       `json:"already_queued"`
	Retained      int       `json:"retained"`
	Dropped       int       `json:"dropped"`
}

// Flushed is the number of jobs the worker accepted in this flush.
func (r *FlushResult) Flushed() int {
	return r.Submitted + r.AlreadyQueued
}

type item struct {
	job        models.SwipedJob
	attempts   int
	enqueuedAt time.Time
}

// Accumulator collects right-swiped jobs for one profile and flushes them as
// a single submission after a quiet period. It is safe for concurrent use.
//
// ResumeSettings are captured once per flush via the resume callback, so a
// settings change before the flush applies to the whole batch.
type Accumulator struct {
	profileID   uuid.UUID
	profileName string
	submit      Submitter
	resume      func() models.ResumeSettings
	opts        Options
	hooks       Hooks

	// group collapses concurrent flushes into one submission; late callers
	// await the in-flight flush and share its result.
	group singleflight.Group

	mu       sync.Mutex
	jobs     []*item
	byURL    map[string]struct{}
	timer    *time.Timer
	oldest   time.Time
	failures int
	stopped  bool
}

// New creates an Accumulator for one profile. The resume callback is read at
// flush time, never at swipe time.
func New(profileID uuid.UUID, profileName string, submit Submitter, resume func() models.ResumeSettings, opts Options, hooks Hooks) *Accumulator {
	if resume == nil {
		resume = func() models.ResumeSettings { return models.ResumeSettings{} }
	}
	return &Accumulator{
		profileID:   profileID,
		profileName: profileName,
		submit:      submit,
		resume:      resume,
		opts:        opts.withDefaults(),
		hooks:       hooks,
		byURL:       make(map[string]struct{}),
	}
}

// Add appends a job to the pending batch and re-arms the debounce timer.
// A job whose URL is already batched is silently skipped. Add never performs
// network I/O; the job is written through to the pending-jobs table so a
// crash before the flush cannot lose it.
func (a *Accumulator) Add(ctx context.Context, job models.SwipedJob) error {
	if job.JobURL == "" {
		return queue.ErrInvalidURL
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrClosed
	}
	if _, dup := a.byURL[job.JobURL]; dup {
		a.armTimerLocked(a.opts.DebounceInterval)
		a.mu.Unlock()
		return nil
	}

	now := time.Now().UTC()
	a.jobs = append(a.jobs, &item{job: job, enqueuedAt: now})
	a.byURL[job.JobURL] = struct{}{}
	if len(a.jobs) == 1 {
		a.oldest = now
	}

	sizeHit := len(a.jobs) >= a.opts.MaxBatchSize
	ageHit := now.Sub(a.oldest) >= a.opts.MaxBatchAge
	if !sizeHit && !ageHit {
		a.armTimerLocked(a.opts.DebounceInterval)
	}
	a.mu.Unlock()

	// Durability only; the in-memory batch is authoritative until the flush.
	pending := &models.PendingJob{
		ProfileID:   a.profileID,
		ProfileName: a.profileName,
		JobURL:      job.JobURL,
		Details:     job,
		Resume:      a.resume(),
		EnqueuedAt:  now,
	}
	if err := a.submit.RecordPending(ctx, pending); err != nil {
		slog.Warn("swiped job not persisted", "job_url", job.JobURL, "profile_id", a.profileID, "error", err)
	}

	if sizeHit || ageHit {
		trigger := TriggerBatchSize
		if ageHit {
			trigger = TriggerBatchAge
		}
		// The swipe path must not wait on the worker.
		go func() {
			if _, err := a.Flush(context.Background(), trigger); err != nil {
				slog.Warn("forced flush failed", "profile_id", a.profileID, "trigger", trigger, "error", err)
			}
		}()
	}
	return nil
}

// Len reports how many jobs are waiting in the batch.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.jobs)
}

// Flush cancels the debounce timer and submits every job batched before the
// call began. Jobs added while the flush is in flight belong to the next
// batch. An empty batch is a no-op: no network call, no hooks.
//
// Per-item failures do not abort the flush. Transient failures keep the job
// batched for the next trigger, up to MaxAttempts; permanent rejections and
// exhausted jobs are dropped. The returned error joins all per-item errors;
// the FlushResult is valid either way.
func (a *Accumulator) Flush(ctx context.Context, trigger Trigger) (*FlushResult, error) {
	type outcome struct {
		res *FlushResult
		err error
	}
	v, _, _ := a.group.Do(a.profileID.String(), func() (any, error) {
		res, err := a.flush(ctx, trigger)
		return outcome{res: res, err: err}, nil
	})
	o := v.(outcome)
	return o.res, o.err
}

// Stop cancels the timer and refuses further adds. It does not flush; call
// Flush with TriggerShutdown first if the batch must be drained.
func (a *Accumulator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Accumulator) flush(ctx context.Context, trigger Trigger) (*FlushResult, error) {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	take := a.jobs
	a.jobs = nil
	a.byURL = make(map[string]struct{})
	a.oldest = time.Time{}
	a.mu.Unlock()

	if len(take) == 0 {
		observability.BatchFlushes.WithLabelValues(string(trigger), "empty").Inc()
		return &FlushResult{}, nil
	}

	resume := a.resume()
	res := &FlushResult{}
	var retained []*item
	var errs []error

	start := time.Now()
	for _, it := range take {
		pj := &models.PendingJob{
			ProfileID:   a.profileID,
			ProfileName: a.profileName,
			JobURL:      it.job.JobURL,
			Details:     it.job,
			Resume:      resume,
			Attempts:    it.attempts,
			EnqueuedAt:  it.enqueuedAt,
		}

		sub, err := a.submit.SubmitJob(ctx, pj)
		switch {
		case err == nil:
			res.AutomationID = sub.AutomationID
			if sub.AlreadyQueued {
				res.AlreadyQueued++
			} else {
				res.Submitted++
			}
		case queue.IsPermanent(err):
			res.Dropped++
			errs = append(errs, fmt.Errorf("%s: %w", it.job.JobURL, err))
			observability.JobsDropped.WithLabelValues(dropReason(err)).Inc()
			a.discard(ctx, it.job.JobURL)
		default:
			it.attempts++
			if it.attempts >= a.opts.MaxAttempts {
				res.Dropped++
				errs = append(errs, fmt.Errorf("%s: retries exhausted: %w", it.job.JobURL, err))
				observability.JobsDropped.WithLabelValues("retries_exhausted").Inc()
				a.discard(ctx, it.job.JobURL)
				slog.Warn("dropping job after repeated failures",
					"job_url", it.job.JobURL, "profile_id", a.profileID, "attempts", it.attempts, "error", err)
			} else {
				retained = append(retained, it)
				errs = append(errs, fmt.Errorf("%s: %w", it.job.JobURL, err))
				// Keep the stored row's count in step with memory so a
				// restart cannot reset the retry budget.
				pj.Attempts = it.attempts
				if rerr := a.submit.RecordPending(ctx, pj); rerr != nil {
					slog.Warn("retry count not persisted", "job_url", it.job.JobURL, "error", rerr)
				}
			}
		}
	}
	observability.FlushDuration.Observe(time.Since(start).Seconds())

	if len(retained) > 0 {
		a.requeue(retained)
	} else {
		a.mu.Lock()
		a.failures = 0
		a.mu.Unlock()
	}
	res.Retained = len(retained)

	outcome := "ok"
	switch {
	case res.Flushed() == 0 && len(errs) > 0:
		outcome = "failed"
	case len(errs) > 0:
		outcome = "partial"
	}
	observability.BatchFlushes.WithLabelValues(string(trigger), outcome).Inc()

	joined := errors.Join(errs...)
	if res.Flushed() > 0 && a.hooks.OnBatchSent != nil {
		a.hooks.OnBatchSent(res.AutomationID, res.Flushed())
	}
	if joined != nil && a.hooks.OnBatchError != nil {
		a.hooks.OnBatchError(joined)
	}

	slog.Info("batch flushed",
		"profile_id", a.profileID,
		"trigger", trigger,
		"submitted", res.Submitted,
		"already_queued", res.AlreadyQueued,
		"retained", res.Retained,
		"dropped", res.Dropped)
	return res, joined
}

// requeue puts transiently failed jobs back at the front of the batch, ahead
// of anything swiped during the flush, and arms a backoff timer so the next
// attempt happens even without further swipes.
func (a *Accumulator) requeue(retained []*item) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	kept := retained[:0]
	for _, it := range retained {
		if _, dup := a.byURL[it.job.JobURL]; dup {
			// Re-swiped while the flush was in flight; the newer entry wins.
			continue
		}
		a.byURL[it.job.JobURL] = struct{}{}
		kept = append(kept, it)
	}
	a.jobs = append(kept, a.jobs...)
	if len(a.jobs) > 0 {
		a.oldest = a.jobs[0].enqueuedAt
	}

	a.failures++
	a.armTimerLocked(a.backoff())
}

// backoff grows exponentially with consecutive failed flushes, capped at
// RetryBackoffMax. Callers must hold mu.
func (a *Accumulator) backoff() time.Duration {
	d := a.opts.RetryBackoffBase
	for i := 1; i < a.failures; i++ {
		d *= 2
		if d >= a.opts.RetryBackoffMax {
			return a.opts.RetryBackoffMax
		}
	}
	if d > a.opts.RetryBackoffMax {
		d = a.opts.RetryBackoffMax
	}
	return d
}

// armTimerLocked replaces the debounce timer. Callers must hold mu.
func (a *Accumulator) armTimerLocked(d time.Duration) {
	if a.stopped {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(d, func() {
		if _, err := a.Flush(context.Background(), TriggerDebounce); err != nil {
			slog.Warn("debounce flush failed", "profile_id", a.profileID, "error", err)
		}
	})
}

func (a *Accumulator) discard(ctx context.Context, jobURL string) {
	if err := a.submit.DiscardPending(ctx, a.profileID, jobURL); err != nil {
		slog.Warn("dropped job not cleared from store", "job_url", jobURL, "error", err)
	}
}

func dropReason(err error) string {
	if errors.Is(err, queue.ErrInvalidURL) {
		return "invalid_url"
	}
	return "rejected"
}
