package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/money"
	"github.com/anjiri1684/course_market/notifications"
	"github.com/anjiri1684/course_market/payments"
	"github.com/anjiri1684/course_market/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	PayoutMethodPayPal = "paypal"
	PayoutMethodManual = "manual"
)

// approvalLease outlasts a payout call, token fetch included.
const approvalLease = 2 * time.Minute

type CreateWithdrawalInput struct {
	Amount   int64  `json:"amount" validate:"gt=0"`
	Currency string `json:"currency" validate:"required,len=3"`
}

type PayoutAccountInput struct {
	Method      string `json:"method" validate:"required,oneof=paypal manual"`
	PayPalEmail string `json:"paypal_email" validate:"required_if=Method paypal,omitempty,email"`
	AccountName string `json:"account_name" validate:"max=255"`
}

type ProcessWithdrawalInput struct {
	Action    string `json:"action" validate:"required,oneof=APPROVE REJECT COMPLETE"`
	AdminNote string `json:"admin_note" validate:"max=1000"`
}

// payoutDestination is the snapshot stored on the request at creation time.
type payoutDestination struct {
	Method      string `json:"method"`
	PayPalEmail string `json:"paypal_email,omitempty"`
	AccountName string `json:"account_name,omitempty"`
}

type WithdrawalService struct {
	db             *gorm.DB
	wallet         *WalletService
	rates          *ExchangeRateService
	payouts        payments.PayoutProvider
	locker         utils.Locker
	notifier       NotificationSink
	minimums       map[string]int64
	payoutCurrency string
	background     func(func())
	now            func() time.Time
}

func NewWithdrawalService(db *gorm.DB, wallet *WalletService, rates *ExchangeRateService, payouts payments.PayoutProvider,
	locker utils.Locker, notifier NotificationSink, minimums map[string]int64, payoutCurrency string) *WithdrawalService {
	return &WithdrawalService{
		db:             db,
		wallet:         wallet,
		rates:          rates,
		payouts:        payouts,
		locker:         locker,
		notifier:       notifier,
		minimums:       minimums,
		payoutCurrency: strings.ToUpper(payoutCurrency),
		background:     runInBackground,
		now:            time.Now,
	}
}

// Create moves the requested amount from available to pending and records a
// PENDING request with the payout destination and exchange rate frozen.
func (s *WithdrawalService) Create(ctx context.Context, caller Caller, in CreateWithdrawalInput) (*models.WithdrawalRequest, error) {
	if !caller.IsInstructor() {
		return nil, apperrors.Forbidden("only instructors can withdraw")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(in.Currency)
	minimum, ok := s.minimums[currency]
	if !ok {
		return nil, apperrors.Validation("withdrawals in %s are not supported", currency)
	}
	if in.Amount < minimum {
		return nil, apperrors.Validation("minimum withdrawal is %s", money.Format(minimum, currency))
	}

	balance, err := s.wallet.GetBalance(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if balance.Currency != currency {
		return nil, apperrors.Validation("balance is kept in %s, cannot withdraw %s", balance.Currency, currency)
	}

	var account models.PayoutAccount
	err = s.db.WithContext(ctx).Where("instructor_id = ?", caller.UserID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Validation("set a payout account before withdrawing")
	}
	if err != nil {
		return nil, err
	}
	destination, err := json.Marshal(payoutDestination{Method: account.Method, PayPalEmail: account.PayPalEmail, AccountName: account.AccountName})
	if err != nil {
		return nil, err
	}

	payout, rate := in.Amount, decimal.NewFromInt(1)
	if currency != s.payoutCurrency {
		if s.rates == nil {
			return nil, apperrors.Provider(nil, "no exchange rate source for %s to %s", currency, s.payoutCurrency)
		}
		payout, rate, err = s.rates.Convert(ctx, in.Amount, currency, s.payoutCurrency)
		if err != nil {
			return nil, err
		}
		if payout <= 0 {
			return nil, apperrors.Validation("amount is too small to pay out in %s", s.payoutCurrency)
		}
	}

	withdrawal := models.WithdrawalRequest{
		InstructorID:     caller.UserID,
		Amount:           payout,
		Currency:         s.payoutCurrency,
		OriginalAmount:   in.Amount,
		OriginalCurrency: currency,
		ExchangeRate:     rate,
		Status:           models.WithdrawalPending,
		PayoutMethod:     account.Method,
		BankInfo:         datatypes.JSON(destination),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&withdrawal).Error; err != nil {
			return err
		}
		return s.wallet.DebitForWithdrawal(tx, caller.UserID, in.Amount, currency, withdrawal.ID)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Withdrawal %s requested by %s: %s", withdrawal.ID, caller.UserID, money.Format(in.Amount, currency))
	s.notify(&withdrawal, notifications.KindWithdrawalRequested, "Withdrawal requested",
		fmt.Sprintf("Your withdrawal of %s is awaiting review.", money.Format(in.Amount, currency)))
	return &withdrawal, nil
}

// Process dispatches an admin decision.
func (s *WithdrawalService) Process(ctx context.Context, caller Caller, id uuid.UUID, in ProcessWithdrawalInput) (*models.WithdrawalRequest, error) {
	if !caller.IsAdmin() {
		return nil, apperrors.Forbidden("admin only")
	}
	in.Action = strings.ToUpper(strings.TrimSpace(in.Action))
	if err := validateInput(in); err != nil {
		return nil, err
	}
	switch in.Action {
	case "APPROVE":
		return s.Approve(ctx, caller, id, in.AdminNote)
	case "REJECT":
		return s.Reject(ctx, caller, id, in.AdminNote)
	case "COMPLETE":
		return s.Complete(ctx, caller, id, in.AdminNote)
	default:
		return nil, apperrors.Validation("unknown action %q", in.Action)
	}
}

// Approve claims a PENDING request and sends it to the payout provider. PayPal
// requests end in PROCESSING until the payout webhook arrives; manual ones wait
// for an admin to Complete them. A request left APPROVED by an attempt that
// stopped after the provider call is resumed with the same sender batch id
// once its approval lease has run out.
func (s *WithdrawalService) Approve(ctx context.Context, caller Caller, id uuid.UUID, note string) (*models.WithdrawalRequest, error) {
	if !caller.IsAdmin() {
		return nil, apperrors.Forbidden("admin only")
	}
	withdrawal, err := s.find(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if withdrawal.PayoutMethod == PayoutMethodPayPal && s.payouts == nil {
		return nil, apperrors.Provider(nil, "payout provider is not configured")
	}
	ctx = context.WithoutCancel(ctx)

	withdrawal, resumed, err := s.claimApproval(ctx, id, note)
	if err != nil {
		return nil, err
	}

	processing := map[string]any{}
	if withdrawal.PayoutMethod == PayoutMethodPayPal {
		var dest payoutDestination
		if err := json.Unmarshal(withdrawal.BankInfo, &dest); err != nil || dest.PayPalEmail == "" {
			if !resumed {
				s.revertApproval(ctx, withdrawal)
			}
			return nil, apperrors.Validation("withdrawal %s has no PayPal destination", withdrawal.ID)
		}
		result, err := s.payouts.CreatePayout(ctx, payments.PayoutRequest{
			SenderBatchID: withdrawal.ID.String(),
			Receiver:      dest.PayPalEmail,
			Amount:        withdrawal.Amount,
			Currency:      withdrawal.Currency,
			Note:          "Instructor earnings withdrawal",
		})
		switch {
		case errors.Is(err, payments.ErrPayoutExists):
			// the payout webhook finds the request by its sender batch id
			log.Printf("⚠️ Payout for withdrawal %s already exists at the provider", withdrawal.ID)
		case err != nil:
			// a resumed request may already be paid, so it stays APPROVED for another retry
			if !resumed {
				s.revertApproval(ctx, withdrawal)
			}
			if apperrors.IsKind(err, apperrors.KindExternalProvider) {
				return nil, err
			}
			return nil, apperrors.Provider(err, "payout for withdrawal %s failed", withdrawal.ID)
		default:
			processing["payout_batch_id"] = result.BatchID
			if result.ItemID != "" {
				processing["payout_item_id"] = result.ItemID
			}
		}
	}

	unlock, err := s.locker.Lock(ctx, withdrawalLockKey(withdrawal.ID))
	if err != nil {
		log.Printf("🔥 Withdrawal %s left APPROVED after payout call: %v", withdrawal.ID, err)
		return nil, err
	}
	defer unlock()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.transition(tx, withdrawal, models.WithdrawalProcessing, processing)
	})
	if apperrors.IsKind(err, apperrors.KindStateConflict) && withdrawal.Status != models.WithdrawalApproved {
		log.Printf("⚠️ Withdrawal %s reached %s through the payout webhook first", withdrawal.ID, withdrawal.Status)
		return s.find(s.db.WithContext(ctx), withdrawal.ID)
	}
	if err != nil {
		log.Printf("🔥 Withdrawal %s left APPROVED after payout call: %v", withdrawal.ID, err)
		return nil, err
	}
	if batchID, ok := processing["payout_batch_id"].(string); ok {
		withdrawal.PayoutBatchID = &batchID
	}
	if itemID, ok := processing["payout_item_id"].(string); ok {
		withdrawal.PayoutItemID = &itemID
	}

	log.Printf("✅ Withdrawal %s approved by %s", withdrawal.ID, caller.UserID)
	s.notify(withdrawal, notifications.KindWithdrawalProcessing, "Withdrawal approved",
		fmt.Sprintf("Your withdrawal of %s is on its way.", money.Format(withdrawal.Amount, withdrawal.Currency)))
	return withdrawal, nil
}

// claimApproval moves a PENDING request to APPROVED, or takes over an
// APPROVED one whose payout call has been idle for longer than approvalLease.
// processed_at is the lease stamp; the payout call runs after the lock is gone.
func (s *WithdrawalService) claimApproval(ctx context.Context, id uuid.UUID, note string) (*models.WithdrawalRequest, bool, error) {
	unlock, err := s.locker.Lock(ctx, withdrawalLockKey(id))
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	withdrawal, err := s.find(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	switch withdrawal.Status {
	case models.WithdrawalPending:
		approved := map[string]any{"processed_at": now}
		if note != "" {
			approved["admin_note"] = note
		}
		if err := s.transition(s.db.WithContext(ctx), withdrawal, models.WithdrawalApproved, approved); err != nil {
			return nil, false, err
		}
		return withdrawal, false, nil
	case models.WithdrawalApproved:
		if withdrawal.ProcessedAt != nil && now.Sub(*withdrawal.ProcessedAt) < approvalLease {
			return nil, false, apperrors.StateConflict("approval of withdrawal %s is in progress", withdrawal.ID)
		}
		err := s.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).
			Where("id = ? AND status = ?", withdrawal.ID, models.WithdrawalApproved).
			Update("processed_at", now).Error
		if err != nil {
			return nil, false, err
		}
		withdrawal.ProcessedAt = &now
		log.Printf("⚠️ Resuming approval of withdrawal %s", withdrawal.ID)
		return withdrawal, true, nil
	default:
		return nil, false, apperrors.InvalidTransition("withdrawal", withdrawal.Status, models.WithdrawalApproved)
	}
}

func (s *WithdrawalService) revertApproval(ctx context.Context, withdrawal *models.WithdrawalRequest) {
	err := s.transition(s.db.WithContext(context.WithoutCancel(ctx)), withdrawal, models.WithdrawalPending, map[string]any{"processed_at": nil})
	if err != nil {
		log.Printf("🔥 Could not return withdrawal %s to PENDING: %v", withdrawal.ID, err)
		return
	}
	withdrawal.ProcessedAt = nil
}

// Reject returns the held funds to the instructor's available balance.
func (s *WithdrawalService) Reject(ctx context.Context, caller Caller, id uuid.UUID, note string) (*models.WithdrawalRequest, error) {
	if !caller.IsAdmin() {
		return nil, apperrors.Forbidden("admin only")
	}
	withdrawal, err := s.find(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.rejectAndRefund(ctx, withdrawal, note); err != nil {
		return nil, err
	}
	log.Printf("✅ Withdrawal %s rejected by %s", withdrawal.ID, caller.UserID)
	s.notify(withdrawal, notifications.KindWithdrawalRejected, "Withdrawal rejected",
		fmt.Sprintf("Your withdrawal of %s was rejected and the funds are back in your balance.", money.Format(withdrawal.OriginalAmount, withdrawal.OriginalCurrency)))
	return withdrawal, nil
}

// Cancel lets the owner withdraw a request that has not been approved yet.
func (s *WithdrawalService) Cancel(ctx context.Context, caller Caller, id uuid.UUID) (*models.WithdrawalRequest, error) {
	withdrawal, err := s.find(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if withdrawal.InstructorID != caller.UserID {
		return nil, apperrors.Forbidden("withdrawal belongs to another instructor")
	}
	if err := s.rejectAndRefund(ctx, withdrawal, "Cancelled by instructor"); err != nil {
		return nil, err
	}
	log.Printf("✅ Withdrawal %s cancelled by its owner", withdrawal.ID)
	return withdrawal, nil
}

func (s *WithdrawalService) rejectAndRefund(ctx context.Context, withdrawal *models.WithdrawalRequest, note string) error {
	updates := map[string]any{"processed_at": s.now()}
	if note != "" {
		updates["admin_note"] = note
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, withdrawal, models.WithdrawalRejected, updates); err != nil {
			return err
		}
		return s.wallet.Refund(tx, withdrawal.InstructorID, withdrawal.OriginalAmount, withdrawal.ID)
	})
}

// Complete records a payout made outside the provider.
func (s *WithdrawalService) Complete(ctx context.Context, caller Caller, id uuid.UUID, note string) (*models.WithdrawalRequest, error) {
	if !caller.IsAdmin() {
		return nil, apperrors.Forbidden("admin only")
	}
	withdrawal, err := s.find(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{"completed_at": s.now()}
	if note != "" {
		updates["admin_note"] = note
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, withdrawal, models.WithdrawalCompleted, updates); err != nil {
			return err
		}
		return s.wallet.CompleteWithdrawal(tx, withdrawal.InstructorID, withdrawal.OriginalAmount)
	})
	if err != nil {
		return nil, err
	}
	s.notify(withdrawal, notifications.KindWithdrawalCompleted, "Withdrawal completed",
		fmt.Sprintf("%s has been paid out.", money.Format(withdrawal.Amount, withdrawal.Currency)))
	return withdrawal, nil
}

// HandlePayoutWebhook reconciles a PROCESSING request with the provider's
// final word. Requests already in a terminal status are returned untouched.
func (s *WithdrawalService) HandlePayoutWebhook(ctx context.Context, payload []byte, headers http.Header) (*models.WithdrawalRequest, error) {
	if s.payouts == nil {
		return nil, apperrors.Provider(nil, "payout provider is not configured")
	}
	event, err := s.payouts.VerifyPayoutWebhook(ctx, payload, headers)
	if err != nil {
		return nil, err
	}

	found, err := s.findByPayout(s.db.WithContext(ctx), event)
	if err != nil {
		return nil, err
	}
	withdrawal := *found
	if withdrawal.Status.Terminal() {
		return &withdrawal, nil
	}

	unlock, err := s.locker.Lock(ctx, withdrawalLockKey(withdrawal.ID))
	if err != nil {
		return nil, err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	applied := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), withdrawal.ID)
		if err != nil {
			return err
		}
		withdrawal = *current
		if withdrawal.Status.Terminal() {
			return nil
		}
		if withdrawal.Status == models.WithdrawalPending {
			// a payout call reported as failed still reached the provider
			if err := s.transition(tx, &withdrawal, models.WithdrawalApproved, map[string]any{"processed_at": s.now()}); err != nil {
				return err
			}
		}
		if withdrawal.Status == models.WithdrawalApproved {
			// approval stopped after the payout went out; record the batch first
			promote := map[string]any{}
			if event.BatchID != "" {
				promote["payout_batch_id"] = event.BatchID
				withdrawal.PayoutBatchID = &event.BatchID
			}
			if err := s.transition(tx, &withdrawal, models.WithdrawalProcessing, promote); err != nil {
				return err
			}
		}

		switch event.Outcome {
		case payments.PayoutSucceeded:
			if err := s.transition(tx, &withdrawal, models.WithdrawalCompleted, map[string]any{"completed_at": s.now()}); err != nil {
				return err
			}
			if err := s.wallet.CompleteWithdrawal(tx, withdrawal.InstructorID, withdrawal.OriginalAmount); err != nil {
				return err
			}
		case payments.PayoutFailed:
			reason := event.Reason
			if reason == "" {
				reason = event.EventType
			}
			if err := s.transition(tx, &withdrawal, models.WithdrawalFailed, map[string]any{"failure_reason": reason}); err != nil {
				return err
			}
			withdrawal.FailureReason = &reason
			if err := s.wallet.Refund(tx, withdrawal.InstructorID, withdrawal.OriginalAmount, withdrawal.ID); err != nil {
				return err
			}
		default:
			return apperrors.Validation("unknown payout outcome %q", event.Outcome)
		}
		if event.ItemID != "" {
			if err := tx.Model(&models.WithdrawalRequest{}).Where("id = ?", withdrawal.ID).Update("payout_item_id", event.ItemID).Error; err != nil {
				return err
			}
			withdrawal.PayoutItemID = &event.ItemID
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		if withdrawal.Status == models.WithdrawalCompleted {
			log.Printf("✅ Payout for withdrawal %s completed", withdrawal.ID)
			s.notify(&withdrawal, notifications.KindWithdrawalCompleted, "Withdrawal completed",
				fmt.Sprintf("%s has been paid out.", money.Format(withdrawal.Amount, withdrawal.Currency)))
		} else {
			log.Printf("⚠️ Payout for withdrawal %s failed: %s", withdrawal.ID, *withdrawal.FailureReason)
			s.notify(&withdrawal, notifications.KindWithdrawalFailed, "Withdrawal failed",
				fmt.Sprintf("Your withdrawal could not be paid out and %s is back in your balance.", money.Format(withdrawal.OriginalAmount, withdrawal.OriginalCurrency)))
		}
	}
	return &withdrawal, nil
}

func (s *WithdrawalService) SetPayoutAccount(ctx context.Context, caller Caller, in PayoutAccountInput) (*models.PayoutAccount, error) {
	if !caller.IsInstructor() {
		return nil, apperrors.Forbidden("only instructors have payout accounts")
	}
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	if err := validateInput(in); err != nil {
		return nil, err
	}
	account := models.PayoutAccount{
		InstructorID: caller.UserID,
		Method:       in.Method,
		PayPalEmail:  strings.TrimSpace(in.PayPalEmail),
		AccountName:  strings.TrimSpace(in.AccountName),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instructor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"method", "paypal_email", "account_name", "updated_at"}),
	}).Create(&account).Error
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Where("instructor_id = ?", caller.UserID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *WithdrawalService) ListMine(ctx context.Context, caller Caller) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	err := s.db.WithContext(ctx).Where("instructor_id = ?", caller.UserID).Order("created_at DESC").Find(&out).Error
	return out, err
}

// ListPending returns requests in the given status for review, PENDING when status is empty.
func (s *WithdrawalService) ListPending(ctx context.Context, caller Caller, status string) ([]models.WithdrawalRequest, error) {
	if !caller.IsAdmin() {
		return nil, apperrors.Forbidden("admin only")
	}
	st := models.WithdrawalStatus(strings.ToUpper(status))
	if st == "" {
		st = models.WithdrawalPending
	}
	var out []models.WithdrawalRequest
	err := s.db.WithContext(ctx).Where("status = ?", st).Order("created_at ASC").Find(&out).Error
	return out, err
}

func (s *WithdrawalService) Get(ctx context.Context, caller Caller, id uuid.UUID) (*models.WithdrawalRequest, error) {
	withdrawal, err := s.find(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if withdrawal.InstructorID != caller.UserID && !caller.IsAdmin() {
		return nil, apperrors.Forbidden("withdrawal belongs to another instructor")
	}
	return withdrawal, nil
}

// findByPayout matches the provider batch id, then the sender batch id we
// sent, which is the withdrawal id.
func (s *WithdrawalService) findByPayout(db *gorm.DB, event *payments.PayoutEvent) (*models.WithdrawalRequest, error) {
	if event.BatchID != "" {
		var withdrawal models.WithdrawalRequest
		err := db.Where("payout_batch_id = ?", event.BatchID).First(&withdrawal).Error
		if err == nil {
			return &withdrawal, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if id, err := uuid.Parse(event.SenderBatchID); err == nil {
		withdrawal, err := s.find(db, id)
		if err == nil || !apperrors.IsKind(err, apperrors.KindNotFound) {
			return withdrawal, err
		}
	}
	return nil, apperrors.NotFound("no withdrawal for payout batch %s", event.BatchID)
}

func (s *WithdrawalService) find(db *gorm.DB, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var withdrawal models.WithdrawalRequest
	err := db.First(&withdrawal, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("withdrawal %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

var withdrawalTransitions = map[models.WithdrawalStatus][]models.WithdrawalStatus{
	models.WithdrawalPending:    {models.WithdrawalApproved, models.WithdrawalRejected},
	models.WithdrawalApproved:   {models.WithdrawalProcessing, models.WithdrawalPending},
	models.WithdrawalProcessing: {models.WithdrawalCompleted, models.WithdrawalFailed},
}

func withdrawalSource(to models.WithdrawalStatus) (models.WithdrawalStatus, bool) {
	for from, targets := range withdrawalTransitions {
		for _, t := range targets {
			if t == to {
				return from, true
			}
		}
	}
	return "", false
}

// transition is a compare-and-set from the single status that may precede to.
func (s *WithdrawalService) transition(db *gorm.DB, w *models.WithdrawalRequest, to models.WithdrawalStatus, updates map[string]any) error {
	from, ok := withdrawalSource(to)
	if !ok {
		return apperrors.InvalidTransition("withdrawal", w.Status, to)
	}
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := db.Model(&models.WithdrawalRequest{}).Where("id = ? AND status = ?", w.ID, from).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var current models.WithdrawalRequest
		if err := db.Select("status").First(&current, "id = ?", w.ID).Error; err == nil {
			w.Status = current.Status
		}
		return apperrors.InvalidTransition("withdrawal", w.Status, to)
	}
	w.Status = to
	if t, ok := values["processed_at"].(time.Time); ok {
		w.ProcessedAt = &t
	}
	if t, ok := values["completed_at"].(time.Time); ok {
		w.CompletedAt = &t
	}
	if note, ok := values["admin_note"].(string); ok {
		w.AdminNote = &note
	}
	return nil
}

func (s *WithdrawalService) notify(w *models.WithdrawalRequest, kind notifications.Kind, title, message string) {
	if s.notifier == nil {
		return
	}
	n := notifications.Notification{
		UserID:  w.InstructorID,
		Kind:    kind,
		Title:   title,
		Message: message,
		Data:    map[string]any{"withdrawal_id": w.ID, "status": w.Status},
	}
	s.background(func() { s.notifier.Notify(context.Background(), n) })
}
