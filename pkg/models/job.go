package models

import (
	"time"

	"github.com/google/uuid"
)

// Swipe directions as emitted by the deck UI. Only right swipes feed the
// automation queue; left swipes are recorded for snapshot continuity only.
const (
	SwipeDirectionRight = "right"
	SwipeDirectionLeft  = "left"
)

// SwipedJob is the job metadata captured from the deck at swipe time.
// JobURL is already resolved (apply URL preferred, listing URL fallback).
type SwipedJob struct {
	JobID   string `db:"job_id"  json:"job_id"`
	JobURL  string `db:"job_url" json:"job_url"`
	Title   string `db:"title"   json:"title"`
	Company string `db:"company" json:"company"`
	Source  string `db:"source"  json:"source"`
}

// PendingJob is one job submission the worker has not yet acknowledged.
// Rows survive restarts so a failed or interrupted flush can be reconciled
// by a later sync. ProfileName rides along so a cold start can still create
// the automation lazily.
type PendingJob struct {
	ProfileID   uuid.UUID      `db:"profile_id"   json:"profile_id"`
	ProfileName string         `db:"profile_name" json:"profile_name"`
	JobURL      string         `db:"job_url"      json:"job_url"`
	Details     SwipedJob      `db:"details"      json:"details"`
	Resume      ResumeSettings `db:"resume"       json:"resume"`
	Attempts    int            `db:"attempts"     json:"attempts"`
	EnqueuedAt  time.Time      `db:"enqueued_at"  json:"enqueued_at"`
}
