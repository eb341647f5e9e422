package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ActivityTypeGroup      = "GROUP"
	ActivityTypeIndividual = "INDIVIDUAL"

	StatusPublished = "PUBLISHED"
	StatusDisabled  = "DISABLED"
)

type Experience struct {
	ID     snowflake.ID `json:"id" gorm:"primaryKey"`
	HostID snowflake.ID `json:"host_id" gorm:"not null;index"`

	Title        string `json:"title" gorm:"type:text;not null"`
	ActivityType string `json:"activity_type" gorm:"type:text;not null"`
	Status       string `json:"status" gorm:"type:text;not null"`

	PriceAmount int64  `json:"price_amount" gorm:"not null"`
	Currency    string `json:"currency" gorm:"type:text;not null"`

	MaxParticipants int  `json:"max_participants" gorm:"not null"`
	RemainingSpots  int  `json:"remaining_spots" gorm:"not null"`
	SoldOut         bool `json:"sold_out" gorm:"not null;default:false"`

	StartsAt        *time.Time `json:"starts_at"`
	EndsAt          *time.Time `json:"ends_at"`
	DurationMinutes int        `json:"duration_minutes" gorm:"not null;default:0"`

	HostReminderSent bool `json:"host_reminder_sent" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Experience) TableName() string { return "experiences" }

func (e *Experience) IsFree() bool {
	return e.PriceAmount == 0
}

func (e *Experience) Bookable() bool {
	return e.Status == StatusPublished
}

var (
	ErrNotFound = errors.New("experience_not_found")
	ErrSoldOut  = errors.New("experience_sold_out")
	ErrInactive = errors.New("experience_inactive")
	ErrStarted  = errors.New("experience_already_started")
)
