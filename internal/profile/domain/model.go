package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Profile is one-to-one with a user and shares its id. A missing row means
// the user still has to onboard.
type Profile struct {
	ID            snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name          string       `gorm:"type:text" json:"name"`
	Nickname      string       `gorm:"type:text;not null" json:"nickname"`
	AvatarURL     string       `gorm:"column:avatar_url;type:text" json:"avatar_url"`
	TermsAccepted bool         `gorm:"column:terms_accepted;not null;default:false" json:"terms_accepted"`
	Email         string       `gorm:"type:text" json:"email"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// Completed reports whether the profile satisfies the onboarding gate.
func (p *Profile) Completed() bool {
	return p != nil && p.TermsAccepted
}

type UpdateRequest struct {
	Name      *string `json:"name"`
	Nickname  *string `json:"nickname"`
	AvatarURL *string `json:"avatar_url"`
}
