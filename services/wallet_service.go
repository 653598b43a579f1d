package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletService owns every balance mutation. Mutating methods run on the
// caller's transaction.
type WalletService struct {
	db         *gorm.DB
	feePercent int64
	currency   string
}

func NewWalletService(db *gorm.DB, feePercent int64, currency string) *WalletService {
	return &WalletService{db: db, feePercent: feePercent, currency: currency}
}

// InstructorShare is round_half_up(lineNet * (100 - fee) / 100).
func (s *WalletService) InstructorShare(lineNet int64) int64 {
	return money.Percent(lineNet, decimal.NewFromInt(100-s.feePercent))
}

// CreditSale books the instructor's share of one paid order line.
func (s *WalletService) CreditSale(tx *gorm.DB, order *models.Order, item *models.OrderItem) (*models.InstructorTransaction, error) {
	if item.InstructorID == nil {
		return nil, nil
	}
	share := s.InstructorShare(item.NetTotal())
	if share <= 0 {
		return nil, nil
	}

	balance, err := s.lockBalance(tx, *item.InstructorID, order.Currency)
	if err != nil {
		return nil, err
	}
	if balance.Currency != order.Currency {
		return nil, apperrors.Validation("instructor balance is kept in %s, sale is in %s", balance.Currency, order.Currency)
	}

	entry := models.InstructorTransaction{
		InstructorID: balance.InstructorID,
		Type:         models.TransactionSale,
		Amount:       share,
		BalanceAfter: balance.AvailableBalance + share,
		ReferenceID:  item.ID,
		Currency:     balance.Currency,
		Description:  fmt.Sprintf("Sale: %s", item.Title),
	}
	if err := s.journal(tx, &entry); err != nil {
		return nil, err
	}

	err = tx.Model(&models.InstructorBalance{}).
		Where("id = ?", balance.ID).
		Update("available_balance", gorm.Expr("available_balance + ?", share)).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// DebitForWithdrawal moves amount from available to pending.
func (s *WalletService) DebitForWithdrawal(tx *gorm.DB, instructorID uuid.UUID, amount int64, currency string, withdrawalID uuid.UUID) error {
	if amount <= 0 {
		return apperrors.Validation("withdrawal amount must be positive")
	}
	res := tx.Model(&models.InstructorBalance{}).
		Where("instructor_id = ? AND currency = ? AND available_balance >= ?", instructorID, currency, amount).
		Updates(map[string]any{
			"available_balance": gorm.Expr("available_balance - ?", amount),
			"pending_balance":   gorm.Expr("pending_balance + ?", amount),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrInsufficientBalance
	}
	return s.journalAfter(tx, instructorID, models.TransactionWithdrawal, -amount, withdrawalID, "Withdrawal request")
}

// Refund moves amount from pending back to available.
func (s *WalletService) Refund(tx *gorm.DB, instructorID uuid.UUID, amount int64, withdrawalID uuid.UUID) error {
	res := tx.Model(&models.InstructorBalance{}).
		Where("instructor_id = ? AND pending_balance >= ?", instructorID, amount).
		Updates(map[string]any{
			"available_balance": gorm.Expr("available_balance + ?", amount),
			"pending_balance":   gorm.Expr("pending_balance - ?", amount),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.StateConflict("pending balance of instructor %s is below %d", instructorID, amount)
	}
	return s.journalAfter(tx, instructorID, models.TransactionWithdrawalRefund, amount, withdrawalID, "Withdrawal refund")
}

// CompleteWithdrawal removes paid-out funds from pending. Available is untouched.
func (s *WalletService) CompleteWithdrawal(tx *gorm.DB, instructorID uuid.UUID, amount int64) error {
	res := tx.Model(&models.InstructorBalance{}).
		Where("instructor_id = ? AND pending_balance >= ?", instructorID, amount).
		Update("pending_balance", gorm.Expr("pending_balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.StateConflict("pending balance of instructor %s is below %d", instructorID, amount)
	}
	return nil
}

// GetBalance returns a zero balance in the platform currency for instructors with no sales yet.
func (s *WalletService) GetBalance(ctx context.Context, instructorID uuid.UUID) (*models.InstructorBalance, error) {
	var balance models.InstructorBalance
	err := s.db.WithContext(ctx).Where("instructor_id = ?", instructorID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.InstructorBalance{InstructorID: instructorID, Currency: s.currency}, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

type TransactionView struct {
	models.InstructorTransaction
	FormattedAmount string `json:"formatted_amount"`
}

type TransactionPage struct {
	Items []TransactionView `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

func (s *WalletService) ListTransactions(ctx context.Context, instructorID uuid.UUID, page, limit int) (*TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	db := s.db.WithContext(ctx).Model(&models.InstructorTransaction{}).
		Where("instructor_id = ?", instructorID).Session(&gorm.Session{})
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []models.InstructorTransaction
	err := db.Order("created_at DESC").Order("id").Offset((page - 1) * limit).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := &TransactionPage{Items: make([]TransactionView, 0, len(rows)), Total: total, Page: page, Limit: limit}
	for _, r := range rows {
		out.Items = append(out.Items, TransactionView{InstructorTransaction: r, FormattedAmount: money.FormatSigned(r.Amount, r.Currency)})
	}
	return out, nil
}

// lockBalance creates the balance row if it is missing and locks it for the rest of tx.
func (s *WalletService) lockBalance(tx *gorm.DB, instructorID uuid.UUID, currency string) (*models.InstructorBalance, error) {
	seed := models.InstructorBalance{InstructorID: instructorID, Currency: currency}
	err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "instructor_id"}}, DoNothing: true}).Create(&seed).Error
	if err != nil {
		return nil, err
	}

	var balance models.InstructorBalance
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("instructor_id = ?", instructorID).First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (s *WalletService) journalAfter(tx *gorm.DB, instructorID uuid.UUID, kind models.TransactionType, amount int64, ref uuid.UUID, desc string) error {
	var balance models.InstructorBalance
	if err := tx.Where("instructor_id = ?", instructorID).First(&balance).Error; err != nil {
		return err
	}
	return s.journal(tx, &models.InstructorTransaction{
		InstructorID: instructorID,
		Type:         kind,
		Amount:       amount,
		BalanceAfter: balance.AvailableBalance,
		ReferenceID:  ref,
		Currency:     balance.Currency,
		Description:  desc,
	})
}

// journal appends one ledger row; a second row for the same (type, reference) is refused.
func (s *WalletService) journal(tx *gorm.DB, entry *models.InstructorTransaction) error {
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "type"}, {Name: "reference_id"}},
		DoNothing: true,
	}).Create(entry)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.StateConflict("%s for reference %s is already journaled", entry.Type, entry.ReferenceID)
	}
	return nil
}
