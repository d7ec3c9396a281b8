package models

import (
	"fmt"
	"time"
)

type Category string

const (
	CategoryEmergency Category = "emergency"
	CategoryGeneral   Category = "general"
)

// ParseCategory accepts the two known alert categories.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryEmergency, CategoryGeneral:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// DispatchOutcome is the result of one send attempt to one token.
type DispatchOutcome struct {
	Token      string `json:"token"`
	StatusCode int    `json:"status"`
	Response   string `json:"response"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// BroadcastSummary describes one completed broadcast.
type BroadcastSummary struct {
	RunID     string        `json:"run_id"`
	Category  Category      `json:"category"`
	Title     string        `json:"title"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}
