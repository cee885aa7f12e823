package earnings

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/utils"
)

// Commission classifications for friend payment history
const (
	CommissionFirstBooking  = "first_booking"
	CommissionRepeatBooking = "repeat_booking"
	CommissionDirectReward  = "direct_reward"
)

// CommissionEntry is one commission the referrer earned from a friend
type CommissionEntry struct {
	CommissionID   uuid.UUID  `json:"commission_id"`
	Amount         float64    `json:"amount"`
	Classification string     `json:"classification"`
	Rate           float64    `json:"rate"`
	PurchaseID     *uuid.UUID `json:"purchase_id,omitempty"`
	PurchaseAmount float64    `json:"purchase_amount,omitempty"`
	EarnedAt       time.Time  `json:"earned_at"`
}

// FriendPaymentHistory is the paginated commission history for one friend
type FriendPaymentHistory struct {
	FriendID   uuid.UUID         `json:"friend_id"`
	FriendName string            `json:"friend_name"`
	Entries    []CommissionEntry `json:"entries"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
}

// GetFriendPaymentHistory reconstructs the commissions a referrer earned
// from one referred friend. The caller must be the friend's active
// referrer. Each commission is classified against the friend's completed
// purchases: the friend's first completed purchase earns the higher
// first-booking rate, later ones the repeat rate, and entries with no
// linked purchase fall back to a flat direct reward.
func (s *Service) GetFriendPaymentHistory(currentUserID, friendID uuid.UUID, page, limit int) (*FriendPaymentHistory, error) {
	relationship, err := s.graphSvc.GetActiveRelationshipForUser(friendID)
	if err != nil {
		return nil, err
	}
	if relationship == nil || relationship.ReferrerID != currentUserID {
		return nil, ErrAccessDenied
	}

	friend, err := s.userSvc.GetUser(friendID)
	if err != nil {
		return nil, fmt.Errorf("error loading friend: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	// The per-friend commission volume is bounded, so load the referrer's
	// referral ledger once and filter in memory.
	var ledger []models.PointsTransaction
	err = s.db.
		Where("user_id = ? AND category IN ?", currentUserID,
			[]string{models.PointsCategoryReferralBonus, models.PointsCategoryReferralCommission}).
		Order("created_at DESC").
		Find(&ledger).Error
	if err != nil {
		return nil, fmt.Errorf("error loading commission ledger: %w", err)
	}

	purchases, firstPurchaseID, err := s.loadFriendPurchases(friendID)
	if err != nil {
		return nil, err
	}

	var entries []CommissionEntry
	for _, entry := range ledger {
		taggedFriend, _ := entry.MetaData["referred_user_id"].(string)
		if taggedFriend != friendID.String() {
			continue
		}
		entries = append(entries, s.classify(entry, purchases, firstPurchaseID))
	}

	total := len(entries)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &FriendPaymentHistory{
		FriendID:   friendID,
		FriendName: utils.MaskName(friend.Name),
		Entries:    entries[start:end],
		Total:      total,
		Page:       page,
		Limit:      limit,
	}, nil
}

// loadFriendPurchases returns the friend's completed purchases keyed by id
// plus the id of their first completed purchase.
func (s *Service) loadFriendPurchases(friendID uuid.UUID) (map[uuid.UUID]models.Purchase, uuid.UUID, error) {
	var completed []models.Purchase
	err := s.db.
		Where("user_id = ? AND status = ?", friendID, models.PurchaseStatusCompleted).
		Order("completed_at ASC").
		Find(&completed).Error
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("error loading friend purchases: %w", err)
	}

	purchases := make(map[uuid.UUID]models.Purchase, len(completed))
	var firstID uuid.UUID
	for i, p := range completed {
		purchases[p.ID] = p
		if i == 0 {
			firstID = p.ID
		}
	}
	return purchases, firstID, nil
}

// classify links a ledger entry to a purchase and derives its commission class
func (s *Service) classify(entry models.PointsTransaction, purchases map[uuid.UUID]models.Purchase, firstPurchaseID uuid.UUID) CommissionEntry {
	result := CommissionEntry{
		CommissionID:   entry.ID,
		Amount:         entry.Amount,
		Classification: CommissionDirectReward,
		EarnedAt:       entry.CreatedAt,
	}

	purchaseRef, _ := entry.MetaData["purchase_id"].(string)
	if purchaseRef == "" {
		return result
	}
	purchaseID, err := uuid.Parse(purchaseRef)
	if err != nil {
		return result
	}
	purchase, ok := purchases[purchaseID]
	if !ok {
		return result
	}

	result.PurchaseID = &purchase.ID
	result.PurchaseAmount = purchase.Amount
	if purchase.ID == firstPurchaseID {
		result.Classification = CommissionFirstBooking
		result.Rate = s.cfg.FirstBookingRate
	} else {
		result.Classification = CommissionRepeatBooking
		result.Rate = s.cfg.RepeatBookingRate
	}
	return result
}
