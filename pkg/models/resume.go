package models

// ResumeSettings control which resume the worker attaches to an application.
// The settings active at the moment of a flush apply uniformly to every job
// in that flush; a change made before the flush retroactively affects the
// whole batch.
type ResumeSettings struct {
	UseTailoredResume bool   `json:"use_tailored_resume"`
	ResumeType        string `json:"resume_type"`
	ResumeTemplate    string `json:"resume_template"`
}
