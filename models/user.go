package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents a user account in the system
type User struct {
	gorm.Model

	// Authentication fields
	Email         string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash  string `gorm:"not null" json:"-"`
	EmailVerified bool   `gorm:"default:false" json:"email_verified"`

	// Profile information
	Name      string  `gorm:"not null" json:"name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Timezone  string  `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`

	// Per-user notification preference flags, keyed by category
	// (e.g. "knowledge_base_updates"). Missing key means enabled.
	NotificationPreferences datatypes.JSONMap `json:"notification_preferences"`

	// Push delivery target, set by the mobile client
	FCMToken *string `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	// Relations
	Memberships   []FirmMember   `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
	Notifications []Notification `gorm:"foreignKey:UserID" json:"-"`
}

// WantsNotification reports whether the user has the given notification
// category enabled. Unset categories default to enabled.
func (u *User) WantsNotification(category string) bool {
	if u.NotificationPreferences == nil {
		return true
	}
	v, ok := u.NotificationPreferences[category]
	if !ok {
		return true
	}
	enabled, ok := v.(bool)
	if !ok {
		return true
	}
	return enabled
}

// RefreshToken stores issued refresh tokens so they can be revoked
type RefreshToken struct {
	gorm.Model
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"-"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `gorm:"default:false" json:"revoked"`

	User User `json:"-"`
}
