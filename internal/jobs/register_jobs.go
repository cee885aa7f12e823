package jobs

import (
	"github.com/referly/backend/internal/queue"
	"github.com/referly/backend/internal/services/payment"
	"github.com/referly/backend/internal/services/users"
	"gorm.io/gorm"
)

// RegisterAllJobHandlers wires every job handler into the worker manager
func RegisterAllJobHandlers(
	manager *queue.WorkerManager,
	db *gorm.DB,
	userSvc *users.UserService,
	cashSvc *payment.CashService,
) {
	notificationJob := NewReferralNotificationJob(userSvc)
	manager.RegisterWorker(queue.JobTypeReferralNotification, notificationJob.Handle, 2)

	sweepJob := NewPendingCashSweepJob(db, cashSvc)
	manager.RegisterWorker(queue.JobTypePendingCashSweep, sweepJob.Handle, 1)
}

// ScheduleRecurringJobs registers the periodic sweeps
func ScheduleRecurringJobs(manager *queue.WorkerManager) error {
	// Re-check pending cash settlements every 15 minutes
	return manager.ScheduleRecurringJob("pending_cash_sweep", queue.JobTypePendingCashSweep, nil, "15m")
}
