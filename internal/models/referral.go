package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RelationshipStatus represents the state of a referral relationship
type RelationshipStatus string

const (
	RelationshipStatusActive    RelationshipStatus = "active"
	RelationshipStatusInactive  RelationshipStatus = "inactive"
	RelationshipStatusSuspended RelationshipStatus = "suspended"
)

// ReferralRelationship represents a directed referral edge from a referrer
// to the user they referred. Relationships are never hard-deleted; they are
// transitioned to inactive or suspended instead.
type ReferralRelationship struct {
	ID                uuid.UUID          `gorm:"type:uuid;primary_key" json:"id"`
	ReferrerID        uuid.UUID          `gorm:"type:uuid;not null;index" json:"referrer_id"`
	Referrer          User               `gorm:"foreignKey:ReferrerID" json:"-"`
	ReferredUserID    uuid.UUID          `gorm:"type:uuid;not null;index" json:"referred_user_id"`
	ReferredUser      User               `gorm:"foreignKey:ReferredUserID" json:"-"`
	ReferralCode      string             `gorm:"type:varchar(12);not null" json:"referral_code"`
	RelationshipDepth int                `gorm:"not null;default:0" json:"relationship_depth"`
	Status            RelationshipStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	BonusPaid         bool               `gorm:"not null;default:false" json:"bonus_paid"`
	CreatedAt         time.Time          `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt         gorm.DeletedAt     `gorm:"index" json:"-"`
}

// BeforeCreate assigns a UUID when the database default is unavailable
func (r *ReferralRelationship) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
