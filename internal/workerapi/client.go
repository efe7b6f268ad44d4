// Package workerapi is the HTTP client for the remote application worker,
// the service that owns Automations and actually applies to jobs.
package workerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jobdeck/swipequeue/pkg/models"
)

// Sentinel errors for worker client failures.
var (
	ErrWorkerUnreachable  = errors.New("worker unreachable")
	ErrWorkerTimeout      = errors.New("worker timeout")
	ErrWorkerUnavailable  = errors.New("worker unavailable")
	ErrWorkerRejected     = errors.New("worker rejected request")
	ErrAutomationNotFound = errors.New("automation not found")
)

// IsTransient reports whether err is worth retrying: the worker was
// unreachable, timed out, or answered with a server-side failure. Rejections
// and unknown automations are permanent for the request that caused them.
func IsTransient(err error) bool {
	return errors.Is(err, ErrWorkerUnreachable) ||
		errors.Is(err, ErrWorkerTimeout) ||
		errors.Is(err, ErrWorkerUnavailable)
}

// Client is the interface for talking to the worker.
type Client interface {
	CreateAutomation(ctx context.Context, profileID uuid.UUID, profileName string) (*models.AutomationRef, error)
	EnqueueJob(ctx context.Context, automationID uuid.UUID, job *models.PendingJob) (*EnqueueResult, error)
	QueueStats(ctx context.Context, automationID uuid.UUID) (*models.QueueStats, error)
	ListQueueEntries(ctx context.Context, automationID uuid.UUID) ([]models.QueueEntry, error)
	Ready(ctx context.Context) error
}

// EnqueueResult is the worker's answer to a job submission. AlreadyQueued is
// set when the (automation, job URL) pair existed before this call; the worker
// treats that as a no-op success, never a new entry.
type EnqueueResult struct {
	Entry         models.QueueEntry
	AlreadyQueued bool
}

// HTTPClient implements Client using the worker's HTTP API.
type HTTPClient struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

// NewHTTPClient creates a new worker HTTP client.
func NewHTTPClient(baseURL, apiToken string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateAutomation(ctx context.Context, profileID uuid.UUID, profileName string) (*models.AutomationRef, error) {
	body, err := json.Marshal(createAutomationRequest{
		ProfileID:   profileID,
		ProfileName: profileName,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	u := fmt.Sprintf("%s/api/automations", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var ar automationResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("decoding automation response: %w", err)
	}

	return &models.AutomationRef{
		AutomationID: ar.AutomationID,
		ProfileID:    ar.ProfileID,
		ProfileName:  ar.ProfileName,
		CreatedAt:    ar.CreatedAt,
	}, nil
}

func (c *HTTPClient) EnqueueJob(ctx context.Context, automationID uuid.UUID, job *models.PendingJob) (*EnqueueResult, error) {
	body, err := json.Marshal(enqueueJobRequest{
		ProfileID:   job.ProfileID,
		ProfileName: job.ProfileName,
		JobURL:      job.JobURL,
		Title:       job.Details.Title,
		Company:     job.Details.Company,
		Source:      job.Details.Source,
		Resume:      job.Resume,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	u := fmt.Sprintf("%s/api/automations/%s/jobs", c.baseURL, automationID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var er enqueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decoding enqueue response: %w", err)
	}

	return &EnqueueResult{
		Entry: models.QueueEntry{
			AutomationID: er.AutomationID,
			JobURL:       er.JobURL,
			Status:       er.Status,
			EnqueuedAt:   er.EnqueuedAt,
		},
		AlreadyQueued: er.AlreadyQueued,
	}, nil
}

func (c *HTTPClient) QueueStats(ctx context.Context, automationID uuid.UUID) (*models.QueueStats, error) {
	u := fmt.Sprintf("%s/api/automations/%s/stats", c.baseURL, automationID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var stats models.QueueStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decoding stats response: %w", err)
	}

	return &stats, nil
}

func (c *HTTPClient) ListQueueEntries(ctx context.Context, automationID uuid.UUID) ([]models.QueueEntry, error) {
	u := fmt.Sprintf("%s/api/automations/%s/jobs", c.baseURL, automationID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var er entriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decoding entries response: %w", err)
	}

	if er.Entries == nil {
		return []models.QueueEntry{}, nil
	}
	return er.Entries, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/ready", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWorkerUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: worker not ready (status %d)", ErrWorkerUnreachable, resp.StatusCode)
	}

	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrWorkerTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrWorkerTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrWorkerUnreachable, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrWorkerUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrWorkerUnreachable, err)
}

// statusError maps a non-success response to a sentinel error. 4xx means the
// request itself is bad and retrying is pointless; anything else is a worker
// fault worth retrying.
func statusError(resp *http.Response) error {
	var er errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&er)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrAutomationNotFound, er.message())
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: status %d: %s", ErrWorkerRejected, resp.StatusCode, er.message())
	default:
		return fmt.Errorf("%w: status %d", ErrWorkerUnavailable, resp.StatusCode)
	}
}

// --- Worker wire types ---

type createAutomationRequest struct {
	ProfileID   uuid.UUID `json:"profile_id"`
	ProfileName string    `json:"profile_name"`
}

type enqueueJobRequest struct {
	ProfileID   uuid.UUID             `json:"profile_id"`
	ProfileName string                `json:"profile_name"`
	JobURL      string                `json:"job_url"`
	Title       string                `json:"title"`
	Company     string                `json:"company"`
	Source      string                `json:"source"`
	Resume      models.ResumeSettings `json:"resume"`
}

type automationResponse struct {
	AutomationID uuid.UUID `json:"automation_id"`
	ProfileID    uuid.UUID `json:"profile_id"`
	ProfileName  string    `json:"profile_name"`
	CreatedAt    time.Time `json:"created_at"`
}

type enqueueResponse struct {
	AutomationID  uuid.UUID `json:"automation_id"`
	JobURL        string    `json:"job_url"`
	Status        string    `json:"status"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	AlreadyQueued bool      `json:"already_queued"`
}

type entriesResponse struct {
	Entries []models.QueueEntry `json:"entries"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (e errorResponse) message() string {
	if e.Error == "" {
		return "no error detail"
	}
	return e.Error
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
