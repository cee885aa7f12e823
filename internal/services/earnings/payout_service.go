package earnings

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/utils"
	"gorm.io/gorm"
)

// PayoutRequest asks the engine to pay a relationship's reward
type PayoutRequest struct {
	RelationshipID uuid.UUID              `json:"relationship_id"`
	PayoutType     models.PayoutType      `json:"payout_type"`
	Amount         float64                `json:"amount"`
	ProcessedBy    string                 `json:"processed_by"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// PayoutResult reports the outcome of a payout attempt
type PayoutResult struct {
	PayoutRecordID uuid.UUID           `json:"payout_record_id"`
	RelationshipID uuid.UUID           `json:"relationship_id"`
	PayoutType     models.PayoutType   `json:"payout_type"`
	Amount         float64             `json:"amount"`
	Status         models.PayoutStatus `json:"status"`
	Reference      string              `json:"reference"`
	ExternalRef    string              `json:"external_ref,omitempty"`
}

// BulkPayoutFailure is one failed item of a bulk payout
type BulkPayoutFailure struct {
	RelationshipID uuid.UUID `json:"relationship_id"`
	Error          string    `json:"error"`
}

// BulkPayoutResult aggregates a bulk payout run
type BulkPayoutResult struct {
	Successful  int                 `json:"successful"`
	Failed      []BulkPayoutFailure `json:"failed"`
	TotalAmount float64             `json:"total_amount"`
}

// ProcessPayout executes a payout exactly once per relationship. A pending
// PayoutRecord is created up front; the bonus_paid flag is flipped with a
// single conditional update so concurrent attempts cannot both win. On any
// failure the record is marked failed and the relationship stays unpaid so
// the caller may retry.
func (s *Service) ProcessPayout(req PayoutRequest) (*PayoutResult, error) {
	relationship, err := s.graphSvc.GetRelationship(req.RelationshipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRelationshipNotFound
		}
		return nil, err
	}
	if relationship.BonusPaid {
		return nil, ErrAlreadyPaid
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	record := &models.PayoutRecord{
		RelationshipID: req.RelationshipID,
		PayoutType:     req.PayoutType,
		Amount:         req.Amount,
		Status:         models.PayoutStatusPending,
		ProcessedBy:    req.ProcessedBy,
		Reference:      utils.GenerateReference("PAYOUT"),
		MetaData:       req.Metadata,
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("error creating payout record: %w", err)
	}

	result := &PayoutResult{
		PayoutRecordID: record.ID,
		RelationshipID: req.RelationshipID,
		PayoutType:     req.PayoutType,
		Amount:         req.Amount,
		Reference:      record.Reference,
	}

	switch req.PayoutType {
	case models.PayoutTypePoints:
		err = s.payoutPoints(relationship, record)
		result.Status = models.PayoutStatusCompleted
	case models.PayoutTypeCash:
		result.ExternalRef, err = s.payoutCash(relationship, record)
		result.Status = models.PayoutStatusPending
	case models.PayoutTypeDiscount:
		err = s.payoutDiscount(relationship, record)
		result.Status = models.PayoutStatusCompleted
	default:
		err = fmt.Errorf("unknown payout type %q", req.PayoutType)
	}

	if err != nil {
		s.failRecord(record, err)
		return nil, err
	}

	log.Printf("payout %s processed: relationship=%s type=%s amount=%.2f status=%s",
		record.ID, req.RelationshipID, req.PayoutType, req.Amount, result.Status)
	return result, nil
}

// payoutPoints credits the points ledger and marks the payout completed,
// all inside one transaction with the bonus_paid claim.
func (s *Service) payoutPoints(relationship *models.ReferralRelationship, record *models.PayoutRecord) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.claimBonusPaid(tx, relationship.ID); err != nil {
			return err
		}

		_, err := s.pointsSvc.CreditWithTx(tx, relationship.ReferrerID, record.Amount,
			models.PointsCategoryReferralBonus,
			fmt.Sprintf("Referral bonus for relationship %s", relationship.ID),
			map[string]interface{}{
				"relationship_id":  relationship.ID.String(),
				"referred_user_id": relationship.ReferredUserID.String(),
				"payout_record_id": record.ID.String(),
			})
		if err != nil {
			return fmt.Errorf("error crediting points: %w", err)
		}

		return s.completeRecord(tx, record)
	})
	if err != nil {
		return err
	}

	// Best effort: a lost notification never affects the payout.
	if referred, lookupErr := s.userSvc.GetUser(relationship.ReferredUserID); lookupErr == nil {
		s.notifySvc.NotifyReferralReward(relationship.ReferrerID, referred.Name, record.Amount)
	} else {
		log.Printf("skipping reward notification, could not load referred user %s: %v",
			relationship.ReferredUserID, lookupErr)
	}

	return nil
}

// payoutCash hands the amount to the external settlement pipeline. The
// claim on bonus_paid must win before the external issuance: a losing
// concurrent attempt would otherwise register a settlement reservation the
// sweep can never reconcile. The record stays pending until the sweep
// confirms settlement.
func (s *Service) payoutCash(relationship *models.ReferralRelationship, record *models.PayoutRecord) (string, error) {
	var externalRef string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.claimBonusPaid(tx, relationship.ID); err != nil {
			return err
		}

		ref, err := s.cashSvc.IssueCashPayout(relationship.ReferrerID, record.Amount, "")
		if err != nil {
			return fmt.Errorf("error issuing cash payout: %w", err)
		}
		externalRef = ref

		meta := models.JSON{}
		for k, v := range record.MetaData {
			meta[k] = v
		}
		meta["external_ref"] = externalRef

		return tx.Model(record).Updates(map[string]interface{}{
			"meta_data":  meta,
			"updated_at": time.Now(),
		}).Error
	})
	if err != nil {
		return "", err
	}

	return externalRef, nil
}

// payoutDiscount issues a coupon token and marks the payout completed
func (s *Service) payoutDiscount(relationship *models.ReferralRelationship, record *models.PayoutRecord) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.claimBonusPaid(tx, relationship.ID); err != nil {
			return err
		}

		coupon := &models.Coupon{
			UserID:    relationship.ReferrerID,
			Code:      utils.GenerateReference("DISC"),
			Amount:    record.Amount,
			ExpiresAt: time.Now().AddDate(0, 0, s.cfg.CouponValidityDays),
		}
		if err := tx.Create(coupon).Error; err != nil {
			return fmt.Errorf("error issuing coupon: %w", err)
		}

		return s.completeRecord(tx, record)
	})
}

// claimBonusPaid flips bonus_paid false -> true with a single conditional
// update. Zero rows affected means a concurrent attempt already won.
func (s *Service) claimBonusPaid(tx *gorm.DB, relationshipID uuid.UUID) error {
	result := tx.Model(&models.ReferralRelationship{}).
		Where("id = ? AND bonus_paid = ?", relationshipID, false).
		Update("bonus_paid", true)
	if result.Error != nil {
		return fmt.Errorf("error claiming bonus_paid: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyPaid
	}
	return nil
}

// completeRecord marks a payout record completed
func (s *Service) completeRecord(tx *gorm.DB, record *models.PayoutRecord) error {
	now := time.Now()
	return tx.Model(record).Updates(map[string]interface{}{
		"status":       models.PayoutStatusCompleted,
		"completed_at": now,
		"updated_at":   now,
	}).Error
}

// failRecord marks a payout record failed with the captured error. The
// relationship stays unpaid so the payout can be retried.
func (s *Service) failRecord(record *models.PayoutRecord, cause error) {
	log.Printf("payout %s failed: relationship=%s amount=%.2f error=%v",
		record.ID, record.RelationshipID, record.Amount, cause)

	err := s.db.Model(record).Updates(map[string]interface{}{
		"status":     models.PayoutStatusFailed,
		"error":      cause.Error(),
		"updated_at": time.Now(),
	}).Error
	if err != nil {
		log.Printf("error marking payout record %s failed: %v", record.ID, err)
	}
}

// ProcessBulkPayouts pays a batch of relationships independently. One
// item's failure never aborts the batch; failures are reported per item.
func (s *Service) ProcessBulkPayouts(relationshipIDs []uuid.UUID, processedBy string) (*BulkPayoutResult, error) {
	result := &BulkPayoutResult{}

	for _, id := range relationshipIDs {
		relationship, err := s.graphSvc.GetRelationship(id)
		if err != nil {
			result.Failed = append(result.Failed, BulkPayoutFailure{
				RelationshipID: id,
				Error:          ErrRelationshipNotFound.Error(),
			})
			continue
		}

		calc, err := s.CalculateEarnings(id, relationship.ReferrerID, relationship.ReferredUserID)
		if err != nil {
			result.Failed = append(result.Failed, BulkPayoutFailure{RelationshipID: id, Error: err.Error()})
			continue
		}
		if !calc.Eligibility.IsEligible {
			result.Failed = append(result.Failed, BulkPayoutFailure{RelationshipID: id, Error: ErrNotEligible.Error()})
			continue
		}

		_, err = s.ProcessPayout(PayoutRequest{
			RelationshipID: id,
			PayoutType:     models.PayoutTypePoints,
			Amount:         calc.TotalEarnings,
			ProcessedBy:    processedBy,
		})
		if err != nil {
			result.Failed = append(result.Failed, BulkPayoutFailure{RelationshipID: id, Error: err.Error()})
			continue
		}

		result.Successful++
		result.TotalAmount += calc.TotalEarnings
	}

	return result, nil
}
