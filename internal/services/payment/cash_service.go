package payment

import (
	"log"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/utils"
)

// CashService is the cash-out collaborator. Cash rewards settle through an
// external batch process; this service only reserves an external reference
// for the settlement run to pick up.
type CashService struct {
	currency string
}

// NewCashService creates a new cash payout service
func NewCashService(currency string) *CashService {
	if currency == "" {
		currency = "USD"
	}
	return &CashService{currency: currency}
}

// IssueCashPayout registers a cash payout with the external settlement
// pipeline and returns its reference. Settlement itself happens out of
// band; the payout record stays pending until the sweep confirms it.
func (s *CashService) IssueCashPayout(userID uuid.UUID, amount float64, currency string) (string, error) {
	if currency == "" {
		currency = s.currency
	}

	ref := utils.GenerateReference("CASH")
	log.Printf("cash payout queued for settlement: user=%s amount=%.2f %s ref=%s", userID, amount, currency, ref)
	return ref, nil
}

// ConfirmSettlement asks the settlement pipeline whether a previously
// issued payout has cleared. The simulated provider clears everything.
func (s *CashService) ConfirmSettlement(ref string) (bool, error) {
	return true, nil
}
