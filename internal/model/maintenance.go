package model

import "time"

// MaintenanceState is the persisted maintenance flag read by the live
// service at request time. It survives process restarts so a crashed
// restore still leaves the system correctly flagged.
type MaintenanceState struct {
	Active bool       `json:"active"`
	Since  *time.Time `json:"since,omitempty"`
	Reason string     `json:"reason,omitempty"`
}
