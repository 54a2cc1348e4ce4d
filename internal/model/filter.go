package model

import "time"

// EventFilter holds criteria for listing events.
type EventFilter struct {
	Status        []Status   `json:"status,omitempty"`
	Type          []string   `json:"type,omitempty"`
	Class         []JobClass `json:"class,omitempty"`
	UpdatedBefore time.Time  `json:"updated_before,omitempty"` // zero = no bound
	Limit         int        `json:"limit,omitempty"`
}
