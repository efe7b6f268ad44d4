package models

import "time"

// JobSnapshot is locally cached job metadata keyed by job URL. It is advisory:
// any field the server returns overrides the cached value, and entries may be
// evicted at any time.
type JobSnapshot struct {
	JobURL   string    `db:"job_url"   json:"job_url"`
	Title    string    `db:"title"     json:"title"`
	Company  string    `db:"company"   json:"company"`
	Source   string    `db:"source"    json:"source"`
	CachedAt time.Time `db:"cached_at" json:"cached_at"`
}
