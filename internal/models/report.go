package models

import "time"

type ZoneRisk string

const (
	ZoneRiskLow    ZoneRisk = "low"
	ZoneRiskMedium ZoneRisk = "medium"
	ZoneRiskHigh   ZoneRisk = "high"
)

type UserRisk string

const (
	UserRiskMedium   UserRisk = "medium"
	UserRiskCritical UserRisk = "critical"
)

type ReportStatus string

const (
	StatusActive    ReportStatus = "active"
	StatusCompleted ReportStatus = "completed"
	StatusCancelled ReportStatus = "cancelled"
)

// Valid reports whether s is one of the known report states.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// HelpReport is a help call submitted by a user. ZoneRisk and UserRisk are
// computed once on creation.
type HelpReport struct {
	ID         int64        `json:"id"`
	ReporterID int64        `json:"user_id"`
	Message    string       `json:"message"`
	Latitude   float64      `json:"latitude"`
	Longitude  float64      `json:"longitude"`
	ZoneRisk   ZoneRisk     `json:"zone_risk"`
	UserRisk   UserRisk     `json:"user_risk"`
	Status     ReportStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}
