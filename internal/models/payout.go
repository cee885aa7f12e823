package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayoutType represents how a referral reward is delivered
type PayoutType string

const (
	PayoutTypePoints   PayoutType = "points"
	PayoutTypeCash     PayoutType = "cash"
	PayoutTypeDiscount PayoutType = "discount"
)

// PayoutStatus represents the state of a payout attempt
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusCompleted PayoutStatus = "completed"
	PayoutStatusFailed    PayoutStatus = "failed"
)

// PayoutRecord is one row per payout attempt against a referral
// relationship. Records are updated in place as the underlying transfer
// completes or fails, and are never deleted; together with the
// relationship's bonus_paid flag they form the idempotency guard.
type PayoutRecord struct {
	ID             uuid.UUID            `gorm:"type:uuid;primary_key" json:"id"`
	RelationshipID uuid.UUID            `gorm:"type:uuid;not null;index" json:"relationship_id"`
	Relationship   ReferralRelationship `gorm:"foreignKey:RelationshipID" json:"-"`
	PayoutType     PayoutType           `gorm:"type:varchar(20);not null" json:"payout_type"`
	Amount         float64              `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status         PayoutStatus         `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ProcessedBy    string               `gorm:"type:varchar(100)" json:"processed_by"`
	Reference      string               `gorm:"type:varchar(64);index" json:"reference"`
	Error          string               `gorm:"type:text" json:"error,omitempty"`
	MetaData       JSON                 `gorm:"type:jsonb" json:"metadata,omitempty"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	CreatedAt      time.Time            `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time            `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate assigns a UUID when the database default is unavailable
func (p *PayoutRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Coupon is the token issued by a discount payout. It is credited to the
// referrer and redeemed against a later purchase outside this core.
type Coupon struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Code       string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Amount     float64    `gorm:"type:decimal(20,2);not null" json:"amount"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate assigns a UUID when the database default is unavailable
func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
