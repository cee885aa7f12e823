package earnings

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referly/backend/internal/models"
)

func (e *testEnv) seedCompletedPurchase(t *testing.T, userID uuid.UUID, amount float64, completedAt time.Time) *models.Purchase {
	t.Helper()
	purchase := &models.Purchase{
		UserID:      userID,
		Amount:      amount,
		Status:      models.PurchaseStatusCompleted,
		CompletedAt: &completedAt,
	}
	require.NoError(t, e.db.Create(purchase).Error)
	return purchase
}

func (e *testEnv) seedCommission(t *testing.T, referrerID, friendID uuid.UUID, amount float64, purchaseID *uuid.UUID) {
	t.Helper()
	metadata := map[string]interface{}{
		"referred_user_id": friendID.String(),
	}
	if purchaseID != nil {
		metadata["purchase_id"] = purchaseID.String()
	}
	_, err := e.pointsSvc.Credit(referrerID, amount, models.PointsCategoryReferralCommission, "commission", metadata)
	require.NoError(t, err)
}

func TestGetFriendPaymentHistoryAccessControl(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	friend := env.seedEligibleUser(t, "Friend")
	stranger := env.seedEligibleUser(t, "Stranger")
	env.seedRelationship(t, referrer, friend)

	// Only the friend's active referrer may read the history
	_, err := env.svc.GetFriendPaymentHistory(stranger.ID, friend.ID, 1, 20)
	assert.ErrorIs(t, err, ErrAccessDenied)

	// A user with no referrer at all is off limits to everyone
	_, err = env.svc.GetFriendPaymentHistory(referrer.ID, stranger.ID, 1, 20)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestGetFriendPaymentHistoryClassification(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	friend := env.seedEligibleUser(t, "Gabriela")
	env.seedRelationship(t, referrer, friend)

	first := env.seedCompletedPurchase(t, friend.ID, 200, time.Now().Add(-2*time.Hour))
	repeat := env.seedCompletedPurchase(t, friend.ID, 300, time.Now().Add(-1*time.Hour))

	env.seedCommission(t, referrer.ID, friend.ID, 20, &first.ID)
	env.seedCommission(t, referrer.ID, friend.ID, 15, &repeat.ID)
	env.seedCommission(t, referrer.ID, friend.ID, 1000, nil)

	// Commissions from other friends must not leak into this history
	env.seedCommission(t, referrer.ID, uuid.New(), 99, nil)

	history, err := env.svc.GetFriendPaymentHistory(referrer.ID, friend.ID, 1, 20)
	require.NoError(t, err)

	assert.Equal(t, friend.ID, history.FriendID)
	assert.Equal(t, "Ga******", history.FriendName)
	require.Equal(t, 3, history.Total)

	byClass := map[string]CommissionEntry{}
	for _, entry := range history.Entries {
		byClass[entry.Classification] = entry
	}

	firstBooking := byClass[CommissionFirstBooking]
	assert.Equal(t, float64(20), firstBooking.Amount)
	assert.Equal(t, 0.10, firstBooking.Rate)
	require.NotNil(t, firstBooking.PurchaseID)
	assert.Equal(t, first.ID, *firstBooking.PurchaseID)
	assert.Equal(t, float64(200), firstBooking.PurchaseAmount)

	repeatBooking := byClass[CommissionRepeatBooking]
	assert.Equal(t, float64(15), repeatBooking.Amount)
	assert.Equal(t, 0.05, repeatBooking.Rate)

	direct := byClass[CommissionDirectReward]
	assert.Equal(t, float64(1000), direct.Amount)
	assert.Nil(t, direct.PurchaseID)
	assert.Zero(t, direct.Rate)
}

func TestGetFriendPaymentHistoryUnlinkedPurchaseFallsBack(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	friend := env.seedEligibleUser(t, "Friend")
	env.seedRelationship(t, referrer, friend)

	// References a purchase that was never completed
	ghost := uuid.New()
	env.seedCommission(t, referrer.ID, friend.ID, 10, &ghost)

	history, err := env.svc.GetFriendPaymentHistory(referrer.ID, friend.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, history.Entries, 1)
	assert.Equal(t, CommissionDirectReward, history.Entries[0].Classification)
}

func TestGetFriendPaymentHistoryPagination(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.seedEligibleUser(t, "Referrer")
	friend := env.seedEligibleUser(t, "Friend")
	env.seedRelationship(t, referrer, friend)

	for i := 0; i < 5; i++ {
		env.seedCommission(t, referrer.ID, friend.ID, float64(i+1), nil)
	}

	page1, err := env.svc.GetFriendPaymentHistory(referrer.ID, friend.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page1.Total)
	assert.Len(t, page1.Entries, 2)

	page3, err := env.svc.GetFriendPaymentHistory(referrer.ID, friend.ID, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3.Entries, 1)

	beyond, err := env.svc.GetFriendPaymentHistory(referrer.ID, friend.ID, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond.Entries)

	// Out-of-range inputs fall back to defaults
	defaulted, err := env.svc.GetFriendPaymentHistory(referrer.ID, friend.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, defaulted.Page)
	assert.Equal(t, 20, defaulted.Limit)
}
