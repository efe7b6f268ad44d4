package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobdeck/swipequeue/internal/api"
	"github.com/jobdeck/swipequeue/internal/api/handler"
	mw "github.com/jobdeck/swipequeue/internal/api/middleware"
	"github.com/jobdeck/swipequeue/internal/batch"
	"github.com/jobdeck/swipequeue/internal/cache"
	"github.com/jobdeck/swipequeue/internal/mocks"
	"github.com/jobdeck/swipequeue/internal/queue"
	"github.com/jobdeck/swipequeue/internal/session"
	"github.com/jobdeck/swipequeue/internal/snapshot"
)

// newServer wires real components (with in-memory store and worker doubles)
// through the full router, the way cmd/server does.
func newServer(t *testing.T) (*httptest.Server, *mocks.Worker) {
	t.Helper()
	ctx := t.Context()

	st := mocks.NewStore()
	worker := &mocks.Worker{}
	m := queue.NewManager(st, worker)
	require.NoError(t, m.Initialize(ctx))

	snaps := snapshot.NewCache(st, 100)
	require.NoError(t, snaps.EnsureLoaded(ctx))

	opts := batch.Options{
		DebounceInterval: time.Hour,
		MaxAttempts:      3,
		MaxBatchSize:     100,
		MaxBatchAge:      24 * time.Hour,
		RetryBackoffBase: time.Hour,
		RetryBackoffMax:  time.Hour,
	}
	sess := session.New(m, snaps, opts, batch.Hooks{})
	t.Cleanup(func() { _ = sess.Close(ctx) })

	router := api.NewRouter(api.Dependencies{
		RateLimit: mw.NewRateLimit(cache.NewMemoryCache(), 1000),

		SelectProfileHandler:   handler.NewSelectProfileHandler(sess),
		ResumeSettingsHandler:  handler.NewResumeSettingsHandler(sess),
		SwipeHandler:           handler.NewSwipeHandler(sess),
		FlushHandler:           handler.NewFlushHandler(sess),
		QueueStatsHandler:      handler.NewQueueStatsHandler(sess, m),
		PendingCountHandler:    handler.NewPendingCountHandler(m),
		SyncHandler:            handler.NewSyncHandler(m),
		CachedJobsHandler:      handler.NewCachedJobsHandler(snaps),
		CleanupProfilesHandler: handler.NewCleanupProfilesHandler(m),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, worker
}

func post(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(srv.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	return resp
}

func data(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env.Data
}

func TestRouter_SwipeFlushRoundTrip(t *testing.T) {
	srv, worker := newServer(t)
	profileID := uuid.New()

	resp := post(t, srv, "/api/v1/session/profile",
		map[string]string{"profile_id": profileID.String(), "profile_name": "Backend Engineer"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	for _, u := range []string{"https://jobs.example.com/1", "https://jobs.example.com/2"} {
		resp = post(t, srv, "/api/v1/swipes", map[string]string{
			"job_id": "job-" + u, "job_url": u, "title": "SWE", "company": "Acme", "direction": "right",
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		resp.Body.Close()
	}

	// Batched, not yet submitted.
	assert.Empty(t, worker.EnqueuedURLs())
	d := data(t, get(t, srv, "/api/v1/queue/pending-count"))
	assert.Equal(t, float64(2), d["pending_urls"])

	d = data(t, post(t, srv, "/api/v1/flush", nil))
	assert.Equal(t, float64(2), d["submitted"])
	assert.Len(t, worker.EnqueuedURLs(), 2)

	// Acknowledged: the local pending count drops to zero.
	d = data(t, get(t, srv, "/api/v1/queue/pending-count"))
	assert.Equal(t, float64(0), d["pending_urls"])
}

func TestRouter_ProfileSwitchFlushesPreviousBatch(t *testing.T) {
	srv, worker := newServer(t)
	p1, p2 := uuid.New(), uuid.New()

	resp := post(t, srv, "/api/v1/session/profile",
		map[string]string{"profile_id": p1.String(), "profile_name": "One"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = post(t, srv, "/api/v1/swipes", map[string]string{
		"job_id": "j3", "job_url": "https://jobs.example.com/j3", "direction": "right",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	d := data(t, post(t, srv, "/api/v1/session/profile",
		map[string]string{"profile_id": p2.String(), "profile_name": "Two"}))
	prev := d["previous_batch"].(map[string]any)
	assert.Equal(t, float64(1), prev["submitted"])

	calls := worker.Enqueued()
	require.Len(t, calls, 1)
	assert.Equal(t, p1, calls[0].Job.ProfileID)
}

func TestRouter_SwipeWithoutProfile(t *testing.T) {
	srv, _ := newServer(t)

	resp := post(t, srv, "/api/v1/swipes", map[string]string{
		"job_url": "https://jobs.example.com/1", "direction": "right",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRouter_CachedJobs(t *testing.T) {
	srv, _ := newServer(t)
	profileID := uuid.New()

	resp := post(t, srv, "/api/v1/session/profile",
		map[string]string{"profile_id": profileID.String(), "profile_name": "One"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = post(t, srv, "/api/v1/swipes", map[string]string{
		"job_url": "https://jobs.example.com/1", "title": "SWE", "company": "Acme", "direction": "left",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	d := data(t, get(t, srv, "/api/v1/jobs/cached"))
	require.Len(t, d, 1)
	snap := d["https://jobs.example.com/1"].(map[string]any)
	assert.Equal(t, "Acme", snap["company"])
}

func TestRouter_NilHandlerReturns501(t *testing.T) {
	router := api.NewRouter(api.Dependencies{})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp := post(t, srv, "/api/v1/flush", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestRouter_UnknownRoute(t *testing.T) {
	srv, _ := newServer(t)

	resp := get(t, srv, "/api/v1/unknown")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
