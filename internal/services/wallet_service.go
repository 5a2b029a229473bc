package services

import (
	"errors"

	"gorm.io/gorm"

	"funding-service/internal/models"
	"funding-service/pkg/common"
)

type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// GetOrCreate returns the user's wallet, creating an empty one on first
// touch.
func (s *WalletService) GetOrCreate(userId int) (*models.WalletAccount, error) {
	var wallet models.WalletAccount
	err := s.DB.Where("user_id = ?", userId).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		wallet = models.WalletAccount{UserId: userId}
		if err := s.DB.Create(&wallet).Error; err != nil {
			return nil, err
		}
		return &wallet, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Balance returns the current wallet balance for a user.
func (s *WalletService) Balance(userId int) (float64, error) {
	wallet, err := s.GetOrCreate(userId)
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// LedgerEntries returns one page of the user's ledger history, newest
// first.
func (s *WalletService) LedgerEntries(userId, page, limit int) (common.PaginationResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := s.DB.Model(&models.LedgerEntry{}).Where("user_id = ?", userId).Count(&total).Error; err != nil {
		return common.PaginationResult{}, err
	}

	var entries []models.LedgerEntry
	err := s.DB.Where("user_id = ?", userId).
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return common.PaginationResult{}, err
	}

	return common.PaginateResponse(entries, total, page, limit, ""), nil
}
