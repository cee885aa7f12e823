package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/queue"
	"github.com/referly/backend/internal/services/payment"
	"gorm.io/gorm"
)

// PendingCashSweepJob periodically re-evaluates pending cash payouts
// against the settlement pipeline, completing the ones that cleared.
type PendingCashSweepJob struct {
	db      *gorm.DB
	cashSvc *payment.CashService
}

// NewPendingCashSweepJob creates the sweep job handler
func NewPendingCashSweepJob(db *gorm.DB, cashSvc *payment.CashService) *PendingCashSweepJob {
	return &PendingCashSweepJob{db: db, cashSvc: cashSvc}
}

// Handle runs one sweep over all pending cash payout records
func (j *PendingCashSweepJob) Handle(ctx context.Context, job queue.Job) (interface{}, error) {
	var pending []models.PayoutRecord
	err := j.db.
		Where("payout_type = ? AND status = ?", models.PayoutTypeCash, models.PayoutStatusPending).
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("error loading pending cash payouts: %w", err)
	}

	completed := 0
	for _, record := range pending {
		externalRef, _ := record.MetaData["external_ref"].(string)
		if externalRef == "" {
			log.Printf("pending cash payout %s has no external reference; skipping", record.ID)
			continue
		}

		settled, err := j.cashSvc.ConfirmSettlement(externalRef)
		if err != nil {
			log.Printf("error confirming settlement for payout %s: %v", record.ID, err)
			continue
		}
		if !settled {
			continue
		}

		now := time.Now()
		err = j.db.Model(&record).Updates(map[string]interface{}{
			"status":       models.PayoutStatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		}).Error
		if err != nil {
			log.Printf("error completing cash payout %s: %v", record.ID, err)
			continue
		}
		completed++
	}

	log.Printf("cash sweep finished: %d pending, %d completed", len(pending), completed)
	return map[string]interface{}{"pending": len(pending), "completed": completed}, nil
}
