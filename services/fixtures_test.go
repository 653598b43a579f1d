package services

import (
	"context"
	"sync"
	"testing"

	"github.com/anjiri1684/course_market/database"
	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/notifications"
	"github.com/anjiri1684/course_market/payments"
	"github.com/anjiri1684/course_market/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notifications.Notification) {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) kinds() []notifications.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notifications.Kind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

func runNow(f func()) { f() }

type fixture struct {
	db         *gorm.DB
	locker     utils.Locker
	catalog    *GormCatalog
	vouchers   *VoucherService
	orders     *OrderService
	wallet     *WalletService
	invoices   *InvoiceService
	settlement *SettlementService
	notes      *recordingNotifier
}

func newFixture(t *testing.T, currency string) *fixture {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{db: db, locker: utils.NewKeyedMutex(), notes: &recordingNotifier{}}
	f.catalog = NewGormCatalog(db)
	f.vouchers = NewVoucherService(db, f.catalog)
	f.orders = NewOrderService(db, f.catalog, f.vouchers, f.locker, currency)
	f.wallet = NewWalletService(db, 20, currency)
	f.invoices = NewInvoiceService(db, nil, nil)
	f.settlement = NewSettlementService(db, f.locker, f.orders, f.vouchers, f.wallet, NewGormEnrollmentSink(), f.invoices, f.notes)
	f.settlement.background = runNow
	return f
}

func (f *fixture) user(t *testing.T, role string) Caller {
	t.Helper()
	u := models.User{FullName: "Test " + role, Email: uuid.NewString() + "@example.com", Role: role}
	require.NoError(t, f.db.Create(&u).Error)
	return Caller{UserID: u.ID, Role: role}
}

func (f *fixture) course(t *testing.T, instructor Caller, price int64, currency string) models.Course {
	t.Helper()
	c := models.Course{Title: "Course " + uuid.NewString()[:8], InstructorID: instructor.UserID, Price: price, Currency: currency, IsActive: true}
	require.NoError(t, f.db.Create(&c).Error)
	return c
}

func (f *fixture) order(t *testing.T, buyer Caller, voucher string, courses ...models.Course) *models.Order {
	t.Helper()
	in := CreateOrderInput{VoucherCode: voucher}
	for _, c := range courses {
		in.Items = append(in.Items, OrderItemInput{EntityType: models.EntityCourse, EntityID: c.ID, Quantity: 1})
	}
	order, err := f.orders.CreateOrder(context.Background(), buyer, in)
	require.NoError(t, err)
	return order
}

func (f *fixture) payment(t *testing.T, order *models.Order, provider models.PaymentProvider, txnID string) models.Payment {
	t.Helper()
	p := models.Payment{
		OrderID:       order.ID,
		Provider:      provider,
		ProviderTxnID: txnID,
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		Status:        models.PaymentStatusInitiated,
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) balance(t *testing.T, instructor Caller) models.InstructorBalance {
	t.Helper()
	b, err := f.wallet.GetBalance(context.Background(), instructor.UserID)
	require.NoError(t, err)
	return *b
}

// ledgerSum adds up the signed journal of an instructor.
func (f *fixture) ledgerSum(t *testing.T, instructor Caller) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, f.db.Model(&models.InstructorTransaction{}).
		Where("instructor_id = ?", instructor.UserID).
		Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error)
	return sum
}

func successEvent(provider models.PaymentProvider, txnID string) *payments.NormalizedEvent {
	return &payments.NormalizedEvent{Provider: provider, ProviderTxnID: txnID, Outcome: payments.OutcomeSuccess, EventType: "test"}
}
