package models

import (
	"strings"

	"gorm.io/gorm"
)

// LoginType records how an account was first created.
type LoginType string

const (
	LoginTypeLocal LoginType = "local"
	LoginTypeOAuth LoginType = "oauth"
)

// User is the identity anchor for credentials, provider links and workspace memberships.
type User struct {
	BaseModel

	Email           string    `gorm:"uniqueIndex;size:320;not null" json:"email"`
	Handle          string    `gorm:"column:userid;uniqueIndex;size:30;not null" json:"userid"`
	DisplayName     string    `gorm:"size:100;not null" json:"display_name"`
	PasswordHash    *string   `gorm:"column:password" json:"-"`
	LoginType       LoginType `gorm:"size:16;not null;default:local" json:"login_type"`
	ProfileImageURL string    `gorm:"size:1024" json:"profile_image_url,omitempty"`

	RefreshToken  *RefreshToken  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	OAuthAccounts []OAuthAccount `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// HasPassword reports whether the account can sign in with a local password.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != nil && *u.PasswordHash != ""
}

// BeforeSave keeps the unique columns case-normalised.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	u.Handle = NormalizeUserID(u.Handle)
	return nil
}

// NormalizeEmail lower-cases and trims an email address for comparison and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUserID lower-cases and trims a user handle for comparison and storage.
func NormalizeUserID(userID string) string {
	return strings.ToLower(strings.TrimSpace(userID))
}
