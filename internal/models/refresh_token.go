package models

import "time"

// RefreshToken is the single active refresh credential of a user. Only the
// keyed hash of the opaque value is stored.
type RefreshToken struct {
	BaseModel

	UserID            uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	TokenHash         string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	PreviousTokenHash string     `gorm:"index;size:64" json:"-"`
	IssuedAt          time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt         time.Time  `gorm:"index;not null" json:"expires_at"`
	RotatedAt         *time.Time `json:"rotated_at,omitempty"`
}
