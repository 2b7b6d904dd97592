package models

import "time"

// Incident is the persisted record of a High or Critical response.
type Incident struct {
	ID        string            `json:"id"`
	Level     AlertLevel        `json:"level"`
	Action    RecommendedAction `json:"action"`
	Reason    string            `json:"reason"`
	Signals   []DetectionSignal `json:"signals,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
