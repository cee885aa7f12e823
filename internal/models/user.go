package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserStatus represents the lifecycle state of a user account
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusDeleted   UserStatus = "deleted"
)

// User represents a user in the system
type User struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Email               string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name                string         `gorm:"type:varchar(100)" json:"name"`
	Status              UserStatus     `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	ReferralCode        string         `gorm:"type:varchar(12);index" json:"referral_code"`
	IsInfluencer        bool           `gorm:"default:false" json:"is_influencer"`
	PhoneNumber         *string        `gorm:"type:varchar(20)" json:"phone_number"`
	PhoneVerified       bool           `gorm:"default:false" json:"phone_verified"`
	AvatarURL           *string        `gorm:"type:text" json:"avatar_url"`
	TotalReferrals      int            `gorm:"default:0" json:"total_referrals"`
	HasPolicyViolations bool           `gorm:"default:false" json:"has_policy_violations"`
	IsAdmin             bool           `gorm:"default:false" json:"is_admin"`
	LastLoginAt         *time.Time     `json:"last_login_at"`
	CreatedAt           time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a UUID when the database default is unavailable
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the account can participate in the referral program
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}
