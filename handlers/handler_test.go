package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/database"
	"github.com/anjiri1684/course_market/middleware"
	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/payments"
	"github.com/anjiri1684/course_market/services"
	"github.com/anjiri1684/course_market/utils"
	"github.com/anjiri1684/course_market/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

// webhookProvider accepts {"txn":..,"outcome":..} bodies signed with X-Test-Signature: ok.
type webhookProvider struct{}

func (webhookProvider) Name() models.PaymentProvider       { return models.ProviderStripe }
func (webhookProvider) SettlementCurrency(c string) string { return c }

func (webhookProvider) CreateCheckout(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	return &payments.CheckoutSession{ProviderCheckoutID: "cs_" + req.OrderID.String(), RedirectURL: "https://pay.example/cs"}, nil
}

func (webhookProvider) VerifyWebhook(_ context.Context, payload []byte, headers http.Header) (*payments.NormalizedEvent, error) {
	if headers.Get("X-Test-Signature") != "ok" {
		return nil, apperrors.InvalidSignature("bad signature")
	}
	var body struct {
		Txn     string           `json:"txn"`
		Outcome payments.Outcome `json:"outcome"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, apperrors.Validation("malformed payload")
	}
	if body.Txn == "" {
		return nil, payments.ErrEventIgnored
	}
	return &payments.NormalizedEvent{
		Provider:      models.ProviderStripe,
		ProviderTxnID: body.Txn,
		Outcome:       body.Outcome,
		EventType:     "test.event",
		RawPayload:    payload,
	}, nil
}

func (webhookProvider) Capture(context.Context, string) (*payments.CaptureResult, error) {
	return nil, errors.New("not supported")
}

type testApp struct {
	app    *fiber.App
	db     *gorm.DB
	orders *services.OrderService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	locker := utils.NewKeyedMutex()
	catalog := services.NewGormCatalog(db)
	vouchers := services.NewVoucherService(db, catalog)
	orders := services.NewOrderService(db, catalog, vouchers, locker, "USD")
	wallet := services.NewWalletService(db, 20, "USD")
	invoices := services.NewInvoiceService(db, nil, nil)
	settlement := services.NewSettlementService(db, locker, orders, vouchers, wallet,
		services.NewGormEnrollmentSink(), invoices, nil)
	rates := services.NewExchangeRateService("", "http://127.0.0.1:0")

	h := &Handler{
		Orders:      orders,
		Payments:    services.NewPaymentService(db, payments.NewRegistry(webhookProvider{}), rates, settlement, locker),
		Vouchers:    vouchers,
		Wallet:      wallet,
		Withdrawals: services.NewWithdrawalService(db, wallet, rates, nil, locker, nil, map[string]int64{"USD": 1000}, "USD"),
		Rates:       rates,
		Hub:         websocket.NewHub(),
		JWTSecret:   testSecret,
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	api := app.Group("/api/v1")
	api.Post("/webhooks/:provider", h.HandlePaymentWebhook)
	api.Post("/webhooks/paypal/payouts", h.HandlePayoutWebhook)
	orderGroup := api.Group("/orders", middleware.Protected(testSecret))
	orderGroup.Post("", h.CreateOrder)
	orderGroup.Get("/:orderId", h.GetOrder)
	api.Get("/instructor/wallet", middleware.Protected(testSecret), middleware.InstructorRequired(), h.GetWallet)

	return &testApp{app: app, db: db, orders: orders}
}

func (a *testApp) user(t *testing.T, role string) services.Caller {
	t.Helper()
	u := models.User{FullName: "Test " + role, Email: uuid.NewString() + "@example.com", Role: role}
	require.NoError(t, a.db.Create(&u).Error)
	return services.Caller{UserID: u.ID, Role: role}
}

func (a *testApp) pendingOrder(t *testing.T, txnID string) *models.Order {
	t.Helper()
	instructor := a.user(t, models.RoleInstructor)
	buyer := a.user(t, models.RoleStudent)
	course := models.Course{Title: "Go", InstructorID: instructor.UserID, Price: 5000, Currency: "USD", IsActive: true}
	require.NoError(t, a.db.Create(&course).Error)

	order, err := a.orders.CreateOrder(context.Background(), buyer, services.CreateOrderInput{
		Items: []services.OrderItemInput{{EntityType: models.EntityCourse, EntityID: course.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, a.db.Create(&models.Payment{
		OrderID:       order.ID,
		Provider:      models.ProviderStripe,
		ProviderTxnID: txnID,
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		Status:        models.PaymentStatusInitiated,
	}).Error)
	return order
}

func (a *testApp) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp.StatusCode, body
}

func webhookRequest(provider, body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+provider, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Test-Signature", signature)
	}
	return req
}

func bearer(t *testing.T, who services.Caller) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": who.UserID.String(),
		"role":    who.Role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestPaymentWebhookResponses(t *testing.T) {
	a := newTestApp(t)
	order := a.pendingOrder(t, "cs_http_1")
	success := `{"txn":"cs_http_1","outcome":"SUCCESS"}`

	status, body := a.do(t, webhookRequest("stripe", success, "nope"))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "error", body["status"])

	status, body = a.do(t, webhookRequest("stripe", `{}`, "ok"))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ignored", body["status"])

	status, _ = a.do(t, webhookRequest("stripe", `{"txn":"cs_unknown","outcome":"SUCCESS"}`, "ok"))
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = a.do(t, webhookRequest("bitcoin", success, "ok"))
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = a.do(t, webhookRequest("stripe", success, "ok"))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["order_paid"])
	assert.Equal(t, false, body["already_processed"])

	status, body = a.do(t, webhookRequest("STRIPE", success, "ok"))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["order_paid"])
	assert.Equal(t, true, body["already_processed"])

	var stored models.Order
	require.NoError(t, a.db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusPaid, stored.Status)
}

func TestPayoutWebhookWithoutProviderIsRetryable(t *testing.T) {
	a := newTestApp(t)
	status, body := a.do(t, webhookRequest("paypal/payouts", `{}`, "ok"))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Webhook processing failed", body["message"])
}

func TestProtectedRoutes(t *testing.T) {
	a := newTestApp(t)
	order := a.pendingOrder(t, "cs_http_2")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil)
	status, _ := a.do(t, req)
	assert.Equal(t, fiber.StatusBadRequest, status)

	buyer := services.Caller{UserID: order.UserID, Role: models.RoleStudent}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil)
	req.Header.Set("Authorization", bearer(t, buyer))
	status, body := a.do(t, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, order.ID.String(), body["id"])

	stranger := a.user(t, models.RoleStudent)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil)
	req.Header.Set("Authorization", bearer(t, stranger))
	status, _ = a.do(t, req)
	assert.Equal(t, fiber.StatusForbidden, status)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders/not-a-uuid", nil)
	req.Header.Set("Authorization", bearer(t, buyer))
	status, body = a.do(t, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid orderId", body["message"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/instructor/wallet", nil)
	req.Header.Set("Authorization", bearer(t, buyer))
	status, _ = a.do(t, req)
	assert.Equal(t, fiber.StatusForbidden, status)

	instructor := a.user(t, models.RoleInstructor)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/instructor/wallet", nil)
	req.Header.Set("Authorization", bearer(t, instructor))
	status, body = a.do(t, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["available_balance"])
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	a := newTestApp(t)
	buyer := a.user(t, models.RoleStudent)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(`{"items":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, buyer))
	status, body := a.do(t, req)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.EqualValues(t, fiber.StatusBadRequest, body["code"])
}

func TestErrorHandlerMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperrors.Validation("bad"), fiber.StatusBadRequest},
		{apperrors.StateConflict("busy"), fiber.StatusConflict},
		{apperrors.NotFound("gone"), fiber.StatusNotFound},
		{apperrors.Forbidden("no"), fiber.StatusForbidden},
		{apperrors.Provider(errors.New("down"), "provider"), fiber.StatusBadGateway},
		{apperrors.ErrInsufficientBalance, fiber.StatusUnprocessableEntity},
		{fiber.ErrUpgradeRequired, fiber.StatusUpgradeRequired},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
		err := tc.err
		app.Get("/", func(c *fiber.Ctx) error { return err })

		resp, e := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
		require.NoError(t, e)
		assert.Equal(t, tc.code, resp.StatusCode, tc.err.Error())
		resp.Body.Close()
	}
}
