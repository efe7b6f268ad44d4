package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobdeck/swipequeue/internal/api/handler"
	"github.com/jobdeck/swipequeue/internal/batch"
	"github.com/jobdeck/swipequeue/internal/queue"
	"github.com/jobdeck/swipequeue/internal/session"
	"github.com/jobdeck/swipequeue/internal/workerapi"
	"github.com/jobdeck/swipequeue/pkg/models"
)

// --- fakes ---

type fakeSession struct {
	selectFn func(ctx context.Context, profileID uuid.UUID, profileName string) (*batch.FlushResult, error)
	active   *uuid.UUID
	resume   models.ResumeSettings
	swipeFn  func(ctx context.Context, sw session.Swipe) error
	flushFn  func(ctx context.Context) (*batch.FlushResult, error)
}

func (f *fakeSession) SelectProfile(ctx context.Context, id uuid.UUID, name string) (*batch.FlushResult, error) {
	if f.selectFn != nil {
		return f.selectFn(ctx, id, name)
	}
	return &batch.FlushResult{}, nil
}

func (f *fakeSession) ActiveProfile() (uuid.UUID, string, bool) {
	if f.active == nil {
		return uuid.Nil, "", false
	}
	return *f.active, "Tester", true
}

func (f *fakeSession) SetResumeSettings(rs models.ResumeSettings) { f.resume = rs }
func (f *fakeSession) ResumeSettings() models.ResumeSettings      { return f.resume }

func (f *fakeSession) RecordSwipe(ctx context.Context, sw session.Swipe) error {
	if f.swipeFn != nil {
		return f.swipeFn(ctx, sw)
	}
	return nil
}

func (f *fakeSession) Flush(ctx context.Context) (*batch.FlushResult, error) {
	if f.flushFn != nil {
		return f.flushFn(ctx)
	}
	return &batch.FlushResult{}, nil
}

type fakeQueue struct {
	statsFn   func(ctx context.Context, profileID uuid.UUID) (*models.QueueStats, error)
	pendingFn func(ctx context.Context) (int, error)
	syncFn    func(ctx context.Context) (*queue.SyncResult, error)
	cleanupFn func(ctx context.Context, validIDs []uuid.UUID) (*queue.CleanupResult, error)
}

func (f *fakeQueue) QueueStats(ctx context.Context, profileID uuid.UUID) (*models.QueueStats, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx, profileID)
	}
	return &models.QueueStats{}, nil
}

func (f *fakeQueue) PendingCount(ctx context.Context) (int, error) {
	if f.pendingFn != nil {
		return f.pendingFn(ctx)
	}
	return 0, nil
}

func (f *fakeQueue) SyncPendingURLs(ctx context.Context) (*queue.SyncResult, error) {
	if f.syncFn != nil {
		return f.syncFn(ctx)
	}
	return &queue.SyncResult{}, nil
}

func (f *fakeQueue) CleanupInvalidProfiles(ctx context.Context, validIDs []uuid.UUID) (*queue.CleanupResult, error) {
	if f.cleanupFn != nil {
		return f.cleanupFn(ctx, validIDs)
	}
	return &queue.CleanupResult{}, nil
}

type fakeSnapshots struct {
	snaps []models.JobSnapshot
}

func (f *fakeSnapshots) All() []models.JobSnapshot { return f.snaps }

// --- helpers ---

func doJSON(t *testing.T, h http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error.Code
}

// --- SelectProfile ---

func TestSelectProfile_OK(t *testing.T) {
	profileID := uuid.New()
	s := &fakeSession{selectFn: func(_ context.Context, id uuid.UUID, name string) (*batch.FlushResult, error) {
		assert.Equal(t, profileID, id)
		assert.Equal(t, "Backend Engineer", name)
		return &batch.FlushResult{Submitted: 2}, nil
	}}

	w := doJSON(t, handler.NewSelectProfileHandler(s), http.MethodPost, "/api/v1/session/profile",
		map[string]string{"profile_id": profileID.String(), "profile_name": "Backend Engineer"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeData(t, w)
	assert.Equal(t, profileID.String(), data["profile_id"])
	prev := data["previous_batch"].(map[string]any)
	assert.Equal(t, float64(2), prev["submitted"])
}

func TestSelectProfile_MissingID(t *testing.T) {
	w := doJSON(t, handler.NewSelectProfileHandler(&fakeSession{}), http.MethodPost, "/api/v1/session/profile",
		map[string]string{"profile_name": "No ID"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))
}

func TestSelectProfile_BadUUID(t *testing.T) {
	w := doJSON(t, handler.NewSelectProfileHandler(&fakeSession{}), http.MethodPost, "/api/v1/session/profile",
		map[string]string{"profile_id": "not-a-uuid"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- ResumeSettings ---

func TestResumeSettings_RoundTrip(t *testing.T) {
	s := &fakeSession{}
	w := doJSON(t, handler.NewResumeSettingsHandler(s), http.MethodPut, "/api/v1/session/resume-settings",
		map[string]any{"use_tailored_resume": true, "resume_type": "tailored", "resume_template": "modern"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.resume.UseTailoredResume)
	data := decodeData(t, w)
	assert.Equal(t, "modern", data["resume_template"])
}

// --- Swipe ---

func TestSwipe_RightAccepted(t *testing.T) {
	var got session.Swipe
	s := &fakeSession{swipeFn: func(_ context.Context, sw session.Swipe) error {
		got = sw
		return nil
	}}

	w := doJSON(t, handler.NewSwipeHandler(s), http.MethodPost, "/api/v1/swipes", map[string]string{
		"job_id":      "j1",
		"job_url":     "https://jobs.example.com/apply/1",
		"listing_url": "https://jobs.example.com/view/1",
		"title":       "SWE",
		"company":     "Acme",
		"source":      "linkedin",
		"direction":   "right",
	})

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "https://jobs.example.com/apply/1", got.ApplyURL)
	assert.Equal(t, "https://jobs.example.com/view/1", got.ListingURL)

	data := decodeData(t, w)
	assert.Equal(t, true, data["batched"])
}

func TestSwipe_LeftNotBatched(t *testing.T) {
	w := doJSON(t, handler.NewSwipeHandler(&fakeSession{}), http.MethodPost, "/api/v1/swipes", map[string]string{
		"job_id": "j1", "job_url": "https://jobs.example.com/1", "direction": "left",
	})

	require.Equal(t, http.StatusAccepted, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, false, data["batched"])
}

func TestSwipe_NoProfile(t *testing.T) {
	s := &fakeSession{swipeFn: func(context.Context, session.Swipe) error {
		return queue.ErrNoProfile
	}}

	w := doJSON(t, handler.NewSwipeHandler(s), http.MethodPost, "/api/v1/swipes", map[string]string{
		"job_url": "https://jobs.example.com/1", "direction": "right",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NO_PROFILE", errorCode(t, w))
}

func TestSwipe_NoUsableURL(t *testing.T) {
	s := &fakeSession{swipeFn: func(context.Context, session.Swipe) error {
		return queue.ErrInvalidURL
	}}

	w := doJSON(t, handler.NewSwipeHandler(s), http.MethodPost, "/api/v1/swipes", map[string]string{
		"job_id": "j1", "direction": "right",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_URL", errorCode(t, w))
}

func TestSwipe_MissingDirection(t *testing.T) {
	w := doJSON(t, handler.NewSwipeHandler(&fakeSession{}), http.MethodPost, "/api/v1/swipes", map[string]string{
		"job_url": "https://jobs.example.com/1",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwipe_InvalidDirection(t *testing.T) {
	s := &fakeSession{swipeFn: func(context.Context, session.Swipe) error {
		return session.ErrInvalidDirection
	}}

	w := doJSON(t, handler.NewSwipeHandler(s), http.MethodPost, "/api/v1/swipes", map[string]string{
		"job_url": "https://jobs.example.com/1", "direction": "up",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Flush ---

func TestFlush_ReturnsSummary(t *testing.T) {
	s := &fakeSession{flushFn: func(context.Context) (*batch.FlushResult, error) {
		return &batch.FlushResult{Submitted: 3, AlreadyQueued: 1}, nil
	}}

	w := doJSON(t, handler.NewFlushHandler(s), http.MethodPost, "/api/v1/flush", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(3), data["submitted"])
	assert.Equal(t, float64(1), data["already_queued"])
}

func TestFlush_PartialFailureStillOK(t *testing.T) {
	s := &fakeSession{flushFn: func(context.Context) (*batch.FlushResult, error) {
		return &batch.FlushResult{Submitted: 1, Retained: 2},
			fmt.Errorf("%w: status 503", workerapi.ErrWorkerUnavailable)
	}}

	w := doJSON(t, handler.NewFlushHandler(s), http.MethodPost, "/api/v1/flush", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(2), data["retained"])
}

func TestFlush_NoProfile(t *testing.T) {
	s := &fakeSession{flushFn: func(context.Context) (*batch.FlushResult, error) {
		return nil, queue.ErrNoProfile
	}}

	w := doJSON(t, handler.NewFlushHandler(s), http.MethodPost, "/api/v1/flush", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

// --- Queue ---

func TestQueueStats_OK(t *testing.T) {
	profileID := uuid.New()
	q := &fakeQueue{statsFn: func(_ context.Context, id uuid.UUID) (*models.QueueStats, error) {
		assert.Equal(t, profileID, id)
		return &models.QueueStats{Pending: 4, Completed: 6, Total: 10}, nil
	}}

	w := doJSON(t, handler.NewQueueStatsHandler(&fakeSession{active: &profileID}, q),
		http.MethodGet, "/api/v1/queue/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(4), data["pending"])
	assert.Equal(t, float64(10), data["total"])
}

func TestQueueStats_NoActiveProfile(t *testing.T) {
	w := doJSON(t, handler.NewQueueStatsHandler(&fakeSession{}, &fakeQueue{}),
		http.MethodGet, "/api/v1/queue/stats", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NO_PROFILE", errorCode(t, w))
}

func TestQueueStats_WorkerDown(t *testing.T) {
	profileID := uuid.New()
	q := &fakeQueue{statsFn: func(context.Context, uuid.UUID) (*models.QueueStats, error) {
		return nil, fmt.Errorf("%w: connection refused", workerapi.ErrWorkerUnreachable)
	}}

	w := doJSON(t, handler.NewQueueStatsHandler(&fakeSession{active: &profileID}, q),
		http.MethodGet, "/api/v1/queue/stats", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "WORKER_UNAVAILABLE", errorCode(t, w))
}

func TestPendingCount(t *testing.T) {
	q := &fakeQueue{pendingFn: func(context.Context) (int, error) { return 7, nil }}

	w := doJSON(t, handler.NewPendingCountHandler(q), http.MethodGet, "/api/v1/queue/pending-count", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(7), data["pending_urls"])
}

func TestSync_ReturnsSummary(t *testing.T) {
	q := &fakeQueue{syncFn: func(context.Context) (*queue.SyncResult, error) {
		return &queue.SyncResult{Submitted: 2, AlreadyQueued: 3}, nil
	}}

	w := doJSON(t, handler.NewSyncHandler(q), http.MethodPost, "/api/v1/queue/sync", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(2), data["submitted"])
	assert.Equal(t, float64(3), data["already_queued"])
}

// --- Profiles cleanup ---

func TestCleanupProfiles_OK(t *testing.T) {
	keep := uuid.New()
	var got []uuid.UUID
	q := &fakeQueue{cleanupFn: func(_ context.Context, validIDs []uuid.UUID) (*queue.CleanupResult, error) {
		got = validIDs
		return &queue.CleanupResult{ProfilesRemoved: 1}, nil
	}}

	w := doJSON(t, handler.NewCleanupProfilesHandler(q), http.MethodPost, "/api/v1/profiles/cleanup",
		map[string][]string{"valid_profile_ids": {keep.String()}})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uuid.UUID{keep}, got)
	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["profiles_removed"])
}

func TestCleanupProfiles_MissingList(t *testing.T) {
	w := doJSON(t, handler.NewCleanupProfilesHandler(&fakeQueue{}), http.MethodPost,
		"/api/v1/profiles/cleanup", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCleanupProfiles_BadUUID(t *testing.T) {
	w := doJSON(t, handler.NewCleanupProfilesHandler(&fakeQueue{}), http.MethodPost,
		"/api/v1/profiles/cleanup", map[string][]string{"valid_profile_ids": {"nope"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Cached jobs ---

func TestCachedJobs_KeyedByURL(t *testing.T) {
	snaps := &fakeSnapshots{snaps: []models.JobSnapshot{
		{JobURL: "https://jobs.example.com/1", Title: "SWE", Company: "Acme", CachedAt: time.Now().UTC()},
		{JobURL: "https://jobs.example.com/2", Title: "SRE", Company: "Globex", CachedAt: time.Now().UTC()},
	}}

	w := doJSON(t, handler.NewCachedJobsHandler(snaps), http.MethodGet, "/api/v1/jobs/cached", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.Len(t, data, 2)
	first := data["https://jobs.example.com/1"].(map[string]any)
	assert.Equal(t, "Acme", first["company"])
}
