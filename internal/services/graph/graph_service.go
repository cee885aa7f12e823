package graph

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/config"
	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/services/users"
	"gorm.io/gorm"
)

// Service manages the referral relationship graph: edge creation with
// cycle rejection, chain traversal and aggregate statistics.
type Service struct {
	db      *gorm.DB
	cfg     config.ReferralConfig
	userSvc *users.UserService
}

// NewService creates a new graph service
func NewService(db *gorm.DB, cfg config.ReferralConfig, userSvc *users.UserService) *Service {
	return &Service{db: db, cfg: cfg, userSvc: userSvc}
}

// CreateRelationship validates and persists a referral edge. The pipeline
// short-circuits on the first failure: basic requirements, circular
// reference, existing relationship, referral limit, then depth computation.
// The partial unique index on active referred_user_id is the real guard
// against concurrent duplicate creation; the in-process check only gives a
// cleaner error on the common path.
func (s *Service) CreateRelationship(referrerID, referredID uuid.UUID, code string) (*models.ReferralRelationship, error) {
	if referrerID == referredID {
		return nil, ErrSelfReferral
	}

	referrer, err := s.userSvc.GetUser(referrerID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrReferrerNotFound
		}
		return nil, fmt.Errorf("error loading referrer: %w", err)
	}
	if !referrer.IsActive() {
		return nil, ErrReferrerNotFound
	}

	referred, err := s.userSvc.GetUser(referredID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrReferredNotFound
		}
		return nil, fmt.Errorf("error loading referred user: %w", err)
	}
	if !referred.IsActive() {
		return nil, ErrReferredNotFound
	}

	circular, err := s.CheckCircularReference(referrerID, referredID)
	if err != nil {
		return nil, err
	}
	if circular.HasCircularReference {
		log.Printf("circular reference refused: referrer=%s referred=%s path=%v", referrerID, referredID, circular.CircularPath)
		return nil, ErrCircularReference
	}

	var existing int64
	err = s.db.Model(&models.ReferralRelationship{}).
		Where("referred_user_id = ? AND status = ?", referredID, models.RelationshipStatusActive).
		Count(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("error checking existing relationship: %w", err)
	}
	if existing > 0 {
		return nil, ErrExistingRelationship
	}

	activeCount, err := s.ActiveReferralCount(referrerID)
	if err != nil {
		return nil, err
	}
	if activeCount >= int64(s.cfg.MaxActiveReferrals) {
		return nil, ErrReferralLimitExceeded
	}

	depth, err := s.computeDepth(referrerID)
	if err != nil {
		return nil, err
	}

	relationship := &models.ReferralRelationship{
		ReferrerID:        referrerID,
		ReferredUserID:    referredID,
		ReferralCode:      code,
		RelationshipDepth: depth,
		Status:            models.RelationshipStatusActive,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(relationship).Error; err != nil {
			return err
		}
		return s.userSvc.IncrementTotalReferrals(tx, referrerID)
	})
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race against a concurrent creation for the same
			// referred user.
			return nil, ErrExistingRelationship
		}
		return nil, fmt.Errorf("error creating relationship: %w", err)
	}

	log.Printf("referral relationship created: %s (%s -> %s, depth %d)", relationship.ID, referrerID, referredID, depth)
	return relationship, nil
}

// GetRelationship loads a relationship by id
func (s *Service) GetRelationship(id uuid.UUID) (*models.ReferralRelationship, error) {
	var relationship models.ReferralRelationship
	if err := s.db.First(&relationship, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("error finding relationship %s: %w", id, err)
	}
	return &relationship, nil
}

// GetActiveRelationshipForUser returns the active relationship where the
// given user is the referred party, or nil when the user has no referrer.
func (s *Service) GetActiveRelationshipForUser(referredID uuid.UUID) (*models.ReferralRelationship, error) {
	var relationship models.ReferralRelationship
	err := s.db.
		Where("referred_user_id = ? AND status = ?", referredID, models.RelationshipStatusActive).
		First(&relationship).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding relationship for user %s: %w", referredID, err)
	}
	return &relationship, nil
}

// ActiveReferralCount returns the number of active referrals made by a user
func (s *Service) ActiveReferralCount(referrerID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.Model(&models.ReferralRelationship{}).
		Where("referrer_id = ? AND status = ?", referrerID, models.RelationshipStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting active referrals: %w", err)
	}
	return count, nil
}

// UpdateStatus transitions a relationship's status. Relationships are never
// hard-deleted.
func (s *Service) UpdateStatus(id uuid.UUID, status models.RelationshipStatus) error {
	result := s.db.Model(&models.ReferralRelationship{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("error updating relationship status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// computeDepth walks the referrer's ancestor chain to derive the depth of a
// new edge: one more than the referrer's own depth, zero for a root. The
// walk is iterative and bounded so corrupted data cannot hang the request.
func (s *Service) computeDepth(referrerID uuid.UUID) (int, error) {
	depth := 0
	visited := map[uuid.UUID]bool{referrerID: true}
	current := referrerID

	for depth < s.cfg.ChainWalkMaxDepth {
		parent, err := s.GetActiveRelationshipForUser(current)
		if err != nil {
			return 0, err
		}
		if parent == nil {
			return depth, nil
		}
		if visited[parent.ReferrerID] {
			log.Printf("warning: cycle encountered computing depth for %s at %s", referrerID, parent.ReferrerID)
			return depth, nil
		}
		visited[parent.ReferrerID] = true
		current = parent.ReferrerID
		depth++
	}

	log.Printf("warning: depth walk for %s exceeded bound %d without reaching a root", referrerID, s.cfg.ChainWalkMaxDepth)
	return depth, nil
}

// isUniqueViolation reports whether an insert failed on a uniqueness
// constraint (the one-active-parent index).
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
