package earnings

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/config"
	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/services/graph"
	"github.com/referly/backend/internal/services/notifications"
	"github.com/referly/backend/internal/services/points"
	"github.com/referly/backend/internal/services/users"
	"gorm.io/gorm"
)

// Tier is a referrer's reward tier, derived from their lifetime
// active-referral count.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

// tierForCount maps an active-referral count to a tier and its multiplier
func tierForCount(count int64) (Tier, float64) {
	switch {
	case count >= 100:
		return TierDiamond, 2.5
	case count >= 50:
		return TierPlatinum, 2.0
	case count >= 25:
		return TierGold, 1.5
	case count >= 10:
		return TierSilver, 1.2
	default:
		return TierBronze, 1.0
	}
}

// EligibilityCheck is one predicate of an eligibility evaluation
type EligibilityCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// EligibilitySnapshot is the computed eligibility verdict at evaluation
// time. It is never persisted.
type EligibilitySnapshot struct {
	IsEligible bool               `json:"is_eligible"`
	Checks     []EligibilityCheck `json:"checks"`
}

// EarningsCalculation is the full reward breakdown plus the eligibility
// verdict for a relationship.
type EarningsCalculation struct {
	RelationshipID       uuid.UUID           `json:"relationship_id"`
	ReferrerID           uuid.UUID           `json:"referrer_id"`
	ReferredUserID       uuid.UUID           `json:"referred_user_id"`
	BaseBonus            float64             `json:"base_bonus"`
	InfluencerMultiplier float64             `json:"influencer_multiplier"`
	InfluencerBonus      float64             `json:"influencer_bonus"`
	Tier                 Tier                `json:"tier"`
	TierMultiplier       float64             `json:"tier_multiplier"`
	TierBonus            float64             `json:"tier_bonus"`
	PromotionBonus       float64             `json:"promotion_bonus"`
	Deductions           float64             `json:"deductions"`
	TotalEarnings        float64             `json:"total_earnings"`
	Eligibility          EligibilitySnapshot `json:"eligibility"`
}

// CashIssuer registers cash payouts with the external settlement pipeline
type CashIssuer interface {
	IssueCashPayout(userID uuid.UUID, amount float64, currency string) (string, error)
}

// Service is the earnings and payout engine
type Service struct {
	db        *gorm.DB
	cfg       config.ReferralConfig
	userSvc   *users.UserService
	graphSvc  *graph.Service
	pointsSvc *points.PointsService
	cashSvc   CashIssuer
	notifySvc *notifications.NotificationService
}

// NewService creates a new earnings service
func NewService(
	db *gorm.DB,
	cfg config.ReferralConfig,
	userSvc *users.UserService,
	graphSvc *graph.Service,
	pointsSvc *points.PointsService,
	cashSvc CashIssuer,
	notifySvc *notifications.NotificationService,
) *Service {
	return &Service{
		db:        db,
		cfg:       cfg,
		userSvc:   userSvc,
		graphSvc:  graphSvc,
		pointsSvc: pointsSvc,
		cashSvc:   cashSvc,
		notifySvc: notifySvc,
	}
}

// CalculateEarnings computes the reward amount for a relationship:
// base + influencer extra + tier extra + promotions − deductions. The
// eligibility verdict rides along so callers never pay an ineligible
// referrer.
func (s *Service) CalculateEarnings(relationshipID, referrerID, referredID uuid.UUID) (*EarningsCalculation, error) {
	relationship, err := s.graphSvc.GetRelationship(relationshipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRelationshipNotFound
		}
		return nil, err
	}
	if relationship.ReferrerID != referrerID || relationship.ReferredUserID != referredID {
		return nil, ErrRelationshipNotFound
	}

	referrer, err := s.userSvc.GetUser(referrerID)
	if err != nil {
		return nil, fmt.Errorf("error loading referrer: %w", err)
	}
	referred, err := s.userSvc.GetUser(referredID)
	if err != nil {
		return nil, fmt.Errorf("error loading referred user: %w", err)
	}

	activeReferrals, err := s.graphSvc.ActiveReferralCount(referrerID)
	if err != nil {
		return nil, err
	}

	calc := &EarningsCalculation{
		RelationshipID:       relationshipID,
		ReferrerID:           referrerID,
		ReferredUserID:       referredID,
		BaseBonus:            s.cfg.BaseBonus,
		InfluencerMultiplier: 1.0,
		PromotionBonus:       0, // extension point for time-boxed campaigns
		Deductions:           0, // extension point for penalty adjustments
	}

	if referrer.IsInfluencer {
		calc.InfluencerMultiplier = s.cfg.InfluencerMultiplier
	}
	calc.InfluencerBonus = calc.BaseBonus * (calc.InfluencerMultiplier - 1)

	calc.Tier, calc.TierMultiplier = tierForCount(activeReferrals)
	calc.TierBonus = calc.BaseBonus * (calc.TierMultiplier - 1)

	calc.TotalEarnings = calc.BaseBonus + calc.InfluencerBonus + calc.TierBonus + calc.PromotionBonus - calc.Deductions

	calc.Eligibility = s.evaluateEligibility(referrer, referred)
	return calc, nil
}

// evaluateEligibility runs every payout predicate against the pair and
// records a human-readable reason for any failure.
func (s *Service) evaluateEligibility(referrer, referred *models.User) EligibilitySnapshot {
	checks := []EligibilityCheck{
		check("referrer_active", referrer.IsActive(), "referrer account is not active"),
		check("referred_active", referred.IsActive(), "referred account is not active"),
		check("phone_verified", referrer.PhoneVerified, "referrer phone number is not verified"),
		check("profile_complete",
			referrer.Name != "" && referrer.AvatarURL != nil && *referrer.AvatarURL != "",
			"referrer profile is missing a name or avatar"),
		check("has_referrals", referrer.TotalReferrals >= 1, "referrer has no referral history"),
		check("no_policy_violations", !referrer.HasPolicyViolations, "referrer has unresolved policy violations"),
	}

	snapshot := EligibilitySnapshot{IsEligible: true, Checks: checks}
	for _, c := range checks {
		if !c.Passed {
			snapshot.IsEligible = false
			break
		}
	}
	return snapshot
}

// check builds an EligibilityCheck, attaching the reason only on failure
func check(name string, passed bool, failureReason string) EligibilityCheck {
	c := EligibilityCheck{Name: name, Passed: passed}
	if !passed {
		c.Reason = failureReason
	}
	return c
}
