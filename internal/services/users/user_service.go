package users

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/models"
	"gorm.io/gorm"
)

// ErrUserNotFound is returned when no matching user exists
var ErrUserNotFound = errors.New("user not found")

// UserService is the user directory consumed by the referral core. It only
// reads account state and bumps referral counters; account management lives
// elsewhere.
type UserService struct {
	db *gorm.DB
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// GetUser looks up a user by id
func (s *UserService) GetUser(id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error finding user %s: %w", id, err)
	}
	return &user, nil
}

// GetUserByReferralCode looks up the active owner of a referral code
func (s *UserService) GetUserByReferralCode(code string) (*models.User, error) {
	var user models.User
	err := s.db.
		Where("referral_code = ? AND status = ?", strings.ToUpper(strings.TrimSpace(code)), models.UserStatusActive).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error finding user by referral code: %w", err)
	}
	return &user, nil
}

// ReferralCodeInUse reports whether a referral code is already assigned to any user
func (s *UserService) ReferralCodeInUse(code string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("referral_code = ?", code).Count(&count).Error; err != nil {
		return false, fmt.Errorf("error checking referral code: %w", err)
	}
	return count > 0, nil
}

// AssignReferralCode sets a user's referral code if they do not have one yet
func (s *UserService) AssignReferralCode(userID uuid.UUID, code string) error {
	result := s.db.Model(&models.User{}).
		Where("id = ? AND (referral_code IS NULL OR referral_code = '')", userID).
		Update("referral_code", code)
	if result.Error != nil {
		return fmt.Errorf("error assigning referral code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.New("user already has a referral code")
	}
	return nil
}

// IncrementTotalReferrals bumps a referrer's lifetime referral counter
func (s *UserService) IncrementTotalReferrals(tx *gorm.DB, userID uuid.UUID) error {
	if tx == nil {
		tx = s.db
	}
	return tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("total_referrals", gorm.Expr("total_referrals + 1")).Error
}
