package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleExplorer = "explorer"
	RoleHost     = "host"
)

type User struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	DisplayName string       `json:"display_name" gorm:"type:text;not null"`
	Email       string       `json:"email" gorm:"type:text;not null;uniqueIndex"`
	Role        string       `json:"role" gorm:"type:text;not null"`
	IsBanned    bool         `json:"is_banned" gorm:"not null;default:false"`

	StripeAccountID        string `json:"stripe_account_id" gorm:"type:text"`
	StripeChargesEnabled   bool   `json:"stripe_charges_enabled" gorm:"not null;default:false"`
	StripePayoutsEnabled   bool   `json:"stripe_payouts_enabled" gorm:"not null;default:false"`
	StripeDetailsSubmitted bool   `json:"stripe_details_submitted" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (User) TableName() string { return "users" }

var (
	ErrNotFound = errors.New("user_not_found")
	ErrBanned   = errors.New("user_banned")
)
