package models

import "time"

// PasswordResetToken is a single-use capability to set a new password.
type PasswordResetToken struct {
	BaseModel

	UserID    uint       `gorm:"not null;index" json:"user_id"`
	TokenHash string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
}

// Consumed reports whether the token was already redeemed.
func (t *PasswordResetToken) Consumed() bool {
	return t.UsedAt != nil
}
