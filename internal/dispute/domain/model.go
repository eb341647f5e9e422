package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ReasonNoShow     = "NO_SHOW"
	ReasonLowQuality = "LOW_QUALITY"
	ReasonSafety     = "SAFETY"
	ReasonOther      = "OTHER"

	ReportStatusOpen    = "OPEN"
	ReportStatusHandled = "HANDLED"
	ReportStatusIgnored = "IGNORED"
)

func ValidReason(reason string) bool {
	switch reason {
	case ReasonNoShow, ReasonLowQuality, ReasonSafety, ReasonOther:
		return true
	default:
		return false
	}
}

type Report struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	BookingID    snowflake.ID `json:"booking_id" gorm:"not null;index"`
	ExperienceID snowflake.ID `json:"experience_id" gorm:"not null;index"`
	HostID       snowflake.ID `json:"host_id" gorm:"not null;index"`
	ReporterID   snowflake.ID `json:"reporter_id" gorm:"not null;index"`

	Reason  string `json:"reason" gorm:"type:text;not null"`
	Comment string `json:"comment" gorm:"type:text"`

	Status      string     `json:"status" gorm:"type:text;not null"`
	ActionTaken string     `json:"action_taken" gorm:"type:text"`
	HandledAt   *time.Time `json:"handled_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Report) TableName() string { return "dispute_reports" }

var (
	ErrNotFound = errors.New("dispute_report_not_found")
)
