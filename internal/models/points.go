package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Points transaction categories used by the referral program
const (
	PointsCategoryReferralBonus      = "referral_bonus"
	PointsCategoryReferralCommission = "referral_commission"
)

// PointsAccount tracks a user's reward point balance
type PointsAccount struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Balance   float64   `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate assigns a UUID when the database default is unavailable
func (a *PointsAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// PointsTransaction is a ledger entry recording a single credit or debit
// against a points account. Referral credits tag the referred friend and
// relationship in the metadata so commission history can be reconstructed.
type PointsTransaction struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount        float64   `gorm:"type:decimal(20,2);not null" json:"amount"`
	Category      string    `gorm:"type:varchar(50);not null;index" json:"category"`
	Reason        string    `gorm:"type:varchar(255)" json:"reason"`
	Reference     string    `gorm:"type:varchar(64);index" json:"reference"`
	BalanceBefore float64   `gorm:"type:decimal(20,2)" json:"balance_before"`
	BalanceAfter  float64   `gorm:"type:decimal(20,2)" json:"balance_after"`
	MetaData      JSON      `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// BeforeCreate assigns a UUID when the database default is unavailable
func (t *PointsTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
