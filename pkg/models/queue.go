package models

import (
	"time"

	"github.com/google/uuid"
)

// Queue entry lifecycle states, owned by the worker. The client only ever
// observes these; it never forces a transition.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// QueueEntry is one job URL tracked within an Automation, as reported by the
// worker. A given (automation_id, job_url) pair is unique server-side;
// resubmitting it is a no-op success, not a new entry.
type QueueEntry struct {
	AutomationID uuid.UUID `json:"automation_id"`
	JobURL       string    `json:"job_url"`
	Status       string    `json:"status"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// QueueStats is a point-in-time snapshot of an Automation's queue, recomputed
// by the worker on every request.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}
