package notifications

import (
	"log"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/queue"
)

// ReferralRewardNotification is the payload delivered to the referrer when
// a referral reward lands.
type ReferralRewardNotification struct {
	UserID     uuid.UUID `json:"user_id"`
	FriendName string    `json:"friend_name"`
	Amount     float64   `json:"amount"`
}

// NotificationService dispatches notifications through the job queue.
// Delivery is fire-and-forget from the caller's perspective: enqueue
// failures are logged and swallowed, never propagated.
type NotificationService struct {
	enqueuer queue.Enqueuer
}

// NewNotificationService creates a new notification service
func NewNotificationService(enqueuer queue.Enqueuer) *NotificationService {
	return &NotificationService{enqueuer: enqueuer}
}

// NotifyReferralReward tells a referrer that a friend earned them a reward
func (s *NotificationService) NotifyReferralReward(userID uuid.UUID, friendName string, amount float64) {
	if s.enqueuer == nil {
		log.Printf("notification (no queue configured): user %s earned %.2f from %s", userID, amount, friendName)
		return
	}

	payload := ReferralRewardNotification{
		UserID:     userID,
		FriendName: friendName,
		Amount:     amount,
	}

	if _, err := s.enqueuer.Enqueue(queue.JobTypeReferralNotification, payload); err != nil {
		// A lost notification must never fail or roll back a payout.
		log.Printf("failed to enqueue referral reward notification for %s: %v", userID, err)
	}
}
