package model

import "time"

// RestoreJob is the persisted record of one restore attempt. Completed
// components are recorded as injection proceeds so an operator can see
// exactly how far a failed restore got and retry just the remainder.
type RestoreJob struct {
	ID              string     `json:"id"`
	EnvelopePath    string     `json:"envelope_path"`
	ArchiveName     string     `json:"archive_name"`
	Components      []string   `json:"components,omitempty"`
	Completed       []string   `json:"completed,omitempty"`
	FailedComponent string     `json:"failed_component,omitempty"`
	Status          string     `json:"status"`
	StatusMessage   string     `json:"status_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

const (
	RestoreStatusRunning     = "running"
	RestoreStatusSucceeded   = "succeeded"
	RestoreStatusFailed      = "failed"
	RestoreStatusUnconfirmed = "aborted-unconfirmed"
)
