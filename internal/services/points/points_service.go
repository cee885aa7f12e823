package points

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/utils"
	"gorm.io/gorm"
)

// PointsService is the points ledger. Every credit writes one immutable
// ledger entry with the balance before and after.
type PointsService struct {
	db *gorm.DB
}

// NewPointsService creates a new points service
func NewPointsService(db *gorm.DB) *PointsService {
	return &PointsService{db: db}
}

// GetOrCreateAccount gets a user's points account or creates one if it doesn't exist
func (s *PointsService) GetOrCreateAccount(tx *gorm.DB, userID uuid.UUID) (*models.PointsAccount, error) {
	if tx == nil {
		tx = s.db
	}

	var account models.PointsAccount
	err := tx.Where("user_id = ?", userID).First(&account).Error
	if err == nil {
		return &account, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error finding points account: %w", err)
	}

	account = models.PointsAccount{
		UserID:  userID,
		Balance: 0,
	}
	if err := tx.Create(&account).Error; err != nil {
		return nil, fmt.Errorf("error creating points account: %w", err)
	}

	return &account, nil
}

// Credit adds points to a user's account and records a ledger entry
func (s *PointsService) Credit(userID uuid.UUID, amount float64, category, reason string, metadata map[string]interface{}) (*models.PointsTransaction, error) {
	var transaction *models.PointsTransaction

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		transaction, err = s.CreditWithTx(tx, userID, amount, category, reason, metadata)
		return err
	})
	if err != nil {
		return nil, err
	}

	return transaction, nil
}

// CreditWithTx adds points to a user's account inside an existing transaction
func (s *PointsService) CreditWithTx(tx *gorm.DB, userID uuid.UUID, amount float64, category, reason string, metadata map[string]interface{}) (*models.PointsTransaction, error) {
	if amount <= 0 {
		return nil, errors.New("credit amount must be positive")
	}

	account, err := s.GetOrCreateAccount(tx, userID)
	if err != nil {
		return nil, err
	}

	// Re-read with a row lock so concurrent credits serialize
	if err := tx.Set("gorm:query_option", "FOR UPDATE").First(account, "id = ?", account.ID).Error; err != nil {
		return nil, fmt.Errorf("error locking points account: %w", err)
	}

	balanceBefore := account.Balance
	account.Balance += amount
	if err := tx.Save(account).Error; err != nil {
		return nil, fmt.Errorf("error updating points balance: %w", err)
	}

	transaction := models.PointsTransaction{
		UserID:        userID,
		Amount:        amount,
		Category:      category,
		Reason:        reason,
		Reference:     utils.GenerateReference("PTS"),
		BalanceBefore: balanceBefore,
		BalanceAfter:  account.Balance,
		MetaData:      metadata,
	}

	if err := tx.Create(&transaction).Error; err != nil {
		return nil, fmt.Errorf("error creating ledger entry: %w", err)
	}

	return &transaction, nil
}

// GetTransactions returns a user's ledger entries for a category, newest
// first, paginated.
func (s *PointsService) GetTransactions(userID uuid.UUID, category string, page, pageSize int) ([]models.PointsTransaction, int64, error) {
	var transactions []models.PointsTransaction
	var total int64

	query := s.db.Model(&models.PointsTransaction{}).Where("user_id = ?", userID)
	if category != "" {
		query = query.Where("category = ?", category)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting ledger entries: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&transactions).Error; err != nil {
		return nil, 0, fmt.Errorf("error finding ledger entries: %w", err)
	}

	return transactions, total, nil
}
