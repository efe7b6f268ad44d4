package models

import (
	"time"

	"github.com/google/uuid"
)

// AutomationRef is the locally cached reference to a server-side Automation.
// The worker creates exactly one Automation per profile; once a reference is
// cached, creation is never attempted again for that profile.
type AutomationRef struct {
	AutomationID uuid.UUID `db:"automation_id" json:"automation_id"`
	ProfileID    uuid.UUID `db:"profile_id"    json:"profile_id"`
	ProfileName  string    `db:"profile_name"  json:"profile_name"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}
