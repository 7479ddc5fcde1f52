package models

import "gorm.io/datatypes"

// OAuthAccount links a user to an identity at an external provider.
type OAuthAccount struct {
	BaseModel

	UserID         uint   `gorm:"not null;uniqueIndex:idx_oauth_user_provider" json:"user_id"`
	Provider       string `gorm:"size:32;not null;uniqueIndex:idx_oauth_provider_subject;uniqueIndex:idx_oauth_user_provider" json:"provider"`
	ProviderUserID string `gorm:"size:255;not null;uniqueIndex:idx_oauth_provider_subject" json:"-"`
	Email          string `gorm:"size:320" json:"email,omitempty"`

	AccessToken  string         `gorm:"type:text" json:"-"`
	RefreshToken string         `gorm:"type:text" json:"-"`
	Profile      datatypes.JSON `json:"-"`
}
