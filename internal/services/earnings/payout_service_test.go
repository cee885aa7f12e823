package earnings

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/services/notifications"
)

func TestProcessPayoutPoints(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	referred := env.seedEligibleUser(t, "Friend")
	rel := env.seedRelationship(t, referrer, referred)

	result, err := env.svc.ProcessPayout(PayoutRequest{
		RelationshipID: rel.ID,
		PayoutType:     models.PayoutTypePoints,
		Amount:         1000,
		ProcessedBy:    "admin@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PayoutStatusCompleted, result.Status)
	assert.NotEmpty(t, result.Reference)

	var record models.PayoutRecord
	require.NoError(t, env.db.First(&record, "id = ?", result.PayoutRecordID).Error)
	assert.Equal(t, models.PayoutStatusCompleted, record.Status)
	assert.NotNil(t, record.CompletedAt)

	var refreshed models.ReferralRelationship
	require.NoError(t, env.db.First(&refreshed, "id = ?", rel.ID).Error)
	assert.True(t, refreshed.BonusPaid)

	// Ledger credited with the relationship tagged in metadata
	ledger, total, err := env.pointsSvc.GetTransactions(referrer.ID, models.PointsCategoryReferralBonus, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, float64(1000), ledger[0].Amount)
	assert.Equal(t, referred.ID.String(), ledger[0].MetaData["referred_user_id"])
}

func TestProcessPayoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	referred := env.seedEligibleUser(t, "Friend")
	rel := env.seedRelationship(t, referrer, referred)

	req := PayoutRequest{
		RelationshipID: rel.ID,
		PayoutType:     models.PayoutTypePoints,
		Amount:         1000,
	}

	_, err := env.svc.ProcessPayout(req)
	require.NoError(t, err)

	_, err = env.svc.ProcessPayout(req)
	assert.ErrorIs(t, err, ErrAlreadyPaid)

	// Exactly one credit landed
	_, total, err := env.pointsSvc.GetTransactions(referrer.ID, models.PointsCategoryReferralBonus, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestClaimBonusPaidWinsOnce(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	referred := env.seedEligibleUser(t, "Friend")
	rel := env.seedRelationship(t, referrer, referred)

	require.NoError(t, env.svc.claimBonusPaid(env.db, rel.ID))
	assert.ErrorIs(t, env.svc.claimBonusPaid(env.db, rel.ID), ErrAlreadyPaid)
}

func TestProcessPayoutValidation(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	referred := env.seedEligibleUser(t, "Friend")
	rel := env.seedRelationship(t, referrer, referred)

	_, err := env.svc.ProcessPayout(PayoutRequest{
		RelationshipID: uuid.New(),
		PayoutType:     models.PayoutTypePoints,
		Amount:         1000,
	})
	assert.ErrorIs(t, err, ErrRelationshipNotFound)

	_, err = env.svc.ProcessPayout(PayoutRequest{
		RelationshipID: rel.ID,
		PayoutType:     models.PayoutTypePoints,
		Amount:         0,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestProcessPayoutUnknownTypeLeavesRelationshipUnpaid(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	referred := env.seedEligibleUser(t, "Friend")
	rel := env.seedRelationship(t, referrer, referred)

	_, err := env.svc.ProcessPayout(PayoutRequest{
		RelationshipID: rel.ID,
		PayoutType:     models.PayoutType("lottery"),
		Amount:         1000,
	})
	require.Error(t, err)

	// The record is failed and the relationship stays open for a retry
	var record models.PayoutRecord
	require.NoError(t, env.db.First(&record, "relationship_id = ?", rel.ID).Error)
	assert.Equal(t, models.PayoutStatusFailed, record.Status)
	assert.NotEmpty(t, record.Error)

	var refreshed models.ReferralRelationship
	require.NoError(t, env.db.First(&refreshed, "id = ?", rel.ID).Error)
	assert.False(t, refreshed.BonusPaid)

	_, err = env.svc.ProcessPayout(PayoutRequest{
		RelationshipID: rel.ID,
		PayoutType:     models.PayoutTypePoints,
		Amount:         1000,
	})
	assert.NoError(t, err)
}

func TestProcessPayoutCashStaysPending(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	referred := env.seedEligibleUser(t, "Friend")
	rel := env.seedRelationship(t, referrer, referred)

	result, err := env.svc.ProcessPayout(PayoutRequest{
		RelationshipID: rel.ID,
		PayoutType:     models.PayoutTypeCash,
		Amount:         1000,
		Metadata:       map[string]interface{}{"campaign": "spring"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.PayoutStatusPending, result.Status)
	assert.NotEmpty(t, result.ExternalRef)

	var record models.PayoutRecord
	require.NoError(t, env.db.First(&record, "id = ?", result.PayoutRecordID).Error)
	assert.Equal(t, models.PayoutStatusPending, record.Status)
	assert.Equal(t, result.ExternalRef, record.MetaData["external_ref"])
	// The settlement reference is merged in, not written over the audit trail
	assert.Equal(t, "spring", record.MetaData["campaign"])

	// Claimed immediately so a retry cannot double-pay while settling
	var refreshed models.ReferralRelationship
	require.NoError(t, env.db.First(&refreshed, "id = ?", rel.ID).Error)
	assert.True(t, refreshed.BonusPaid)
}

// countingCashIssuer records how many settlement reservations were made
type countingCashIssuer struct {
	calls int
}

func (c *countingCashIssuer) IssueCashPayout(userID uuid.UUID, amount float64, currency string) (string, error) {
	c.calls++
	return "CASH_TEST_REF", nil
}

func TestPayoutCashLoserIssuesNoSettlement(t *testing.T) {
	env := newTestEnv(t)
	issuer := &countingCashIssuer{}
	svc := NewService(env.db, env.cfg, env.userSvc, env.graphSvc, env.pointsSvc, issuer,
		notifications.NewNotificationService(nil))

	referrer := env.seedEligibleUser(t, "Referrer")
	referred := env.seedEligibleUser(t, "Friend")
	rel := env.seedRelationship(t, referrer, referred)

	// A concurrent attempt wins the claim first
	require.NoError(t, svc.claimBonusPaid(env.db, rel.ID))

	// The loser still holds the pre-claim snapshot
	stale := *rel
	record := &models.PayoutRecord{
		RelationshipID: rel.ID,
		PayoutType:     models.PayoutTypeCash,
		Amount:         1000,
		Status:         models.PayoutStatusPending,
		Reference:      "PAYOUT_RACE_LOSER",
	}
	require.NoError(t, env.db.Create(record).Error)

	_, err := svc.payoutCash(&stale, record)
	assert.ErrorIs(t, err, ErrAlreadyPaid)

	// No settlement reservation was registered for the losing attempt
	assert.Zero(t, issuer.calls)

	var refreshed models.PayoutRecord
	require.NoError(t, env.db.First(&refreshed, "id = ?", record.ID).Error)
	_, hasRef := refreshed.MetaData["external_ref"]
	assert.False(t, hasRef)
}

func TestProcessPayoutDiscountIssuesCoupon(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	referred := env.seedEligibleUser(t, "Friend")
	rel := env.seedRelationship(t, referrer, referred)

	result, err := env.svc.ProcessPayout(PayoutRequest{
		RelationshipID: rel.ID,
		PayoutType:     models.PayoutTypeDiscount,
		Amount:         500,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusCompleted, result.Status)

	var coupon models.Coupon
	require.NoError(t, env.db.First(&coupon, "user_id = ?", referrer.ID).Error)
	assert.Equal(t, float64(500), coupon.Amount)
	assert.NotEmpty(t, coupon.Code)
	assert.True(t, coupon.ExpiresAt.After(coupon.CreatedAt))
}

func TestProcessBulkPayouts(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")

	ids := make([]uuid.UUID, 0, 5)
	var prepaid uuid.UUID
	for i := 0; i < 5; i++ {
		friend := env.seedEligibleUser(t, "Friend")
		rel := env.seedRelationship(t, referrer, friend)
		ids = append(ids, rel.ID)
		if i == 2 {
			prepaid = rel.ID
		}
	}

	// Item #3 was already paid out earlier
	require.NoError(t, env.svc.claimBonusPaid(env.db, prepaid))

	result, err := env.svc.ProcessBulkPayouts(ids, "admin@example.com")
	require.NoError(t, err)

	assert.Equal(t, 4, result.Successful)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, prepaid, result.Failed[0].RelationshipID)
	assert.Equal(t, ErrAlreadyPaid.Error(), result.Failed[0].Error)
	assert.InDelta(t, 4000, result.TotalAmount, 0.001)
}

func TestProcessBulkPayoutsSkipsMissingAndIneligible(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	friend := env.seedEligibleUser(t, "Friend")
	rel := env.seedRelationship(t, referrer, friend)

	// Make the referrer ineligible after the edge exists
	require.NoError(t, env.db.Model(referrer).Update("has_policy_violations", true).Error)

	result, err := env.svc.ProcessBulkPayouts([]uuid.UUID{rel.ID, uuid.New()}, "admin@example.com")
	require.NoError(t, err)

	assert.Equal(t, 0, result.Successful)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, ErrNotEligible.Error(), result.Failed[0].Error)
	assert.Equal(t, ErrRelationshipNotFound.Error(), result.Failed[1].Error)
}
