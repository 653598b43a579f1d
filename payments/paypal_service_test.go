package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePayPal struct {
	tokenCalls   int32
	verifyStatus string
	captureCode  int
	captureBody  string
	orderStatus  string

	payoutCode int
	payoutBody string

	mu              sync.Mutex
	lastPayout      map[string]any
	payoutRequestID string
}

func (f *fakePayPal) payout() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPayout
}

func (f *fakePayPal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		w.Write([]byte(`{"access_token":"A21","expires_in":32400}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer A21", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("PayPal-Request-Id"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body["intent"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"5O190127","status":"CREATED","links":[{"href":"https://paypal.test/self","rel":"self"},{"href":"https://paypal.test/approve","rel":"approve"}]}`))
	})
	mux.HandleFunc("/v2/checkout/orders/5O190127/capture", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "capture-5O190127", r.Header.Get("PayPal-Request-Id"))
		w.WriteHeader(f.captureCode)
		w.Write([]byte(f.captureBody))
	})
	mux.HandleFunc("/v2/checkout/orders/5O190127", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"5O190127","status":"` + f.orderStatus + `"}`))
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		var req verifySignatureRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "WH-1", req.WebhookID)
		w.Write([]byte(`{"verification_status":"` + f.verifyStatus + `"}`))
	})
	mux.HandleFunc("/v1/payments/payouts", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		assert.NoError(t, json.Unmarshal(raw, &f.lastPayout))
		f.payoutRequestID = r.Header.Get("PayPal-Request-Id")
		f.mu.Unlock()
		if f.payoutCode != 0 {
			w.WriteHeader(f.payoutCode)
			w.Write([]byte(f.payoutBody))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"batch_header":{"payout_batch_id":"BATCH-9","batch_status":"PENDING"}}`))
	})
	return mux
}

func newTestPayPal(t *testing.T, f *fakePayPal) (*PayPalClient, func()) {
	srv := httptest.NewServer(f.handler(t))
	client := NewPayPalClient(PayPalConfig{
		APIBase:      srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		WebhookID:    "WH-1",
		ReturnURL:    "https://shop.test/return",
		CancelURL:    "https://shop.test/cancel",
	})
	return client, srv.Close
}

func paypalHeaders() http.Header {
	h := http.Header{}
	h.Set("Paypal-Auth-Algo", "SHA256withRSA")
	h.Set("Paypal-Cert-Url", "https://api.paypal.test/cert.pem")
	h.Set("Paypal-Transmission-Id", "tx-1")
	h.Set("Paypal-Transmission-Sig", "sig")
	h.Set("Paypal-Transmission-Time", "2026-10-14T10:00:00Z")
	return h
}

func TestPayPalCreateCheckoutCachesToken(t *testing.T) {
	f := &fakePayPal{}
	client, done := newTestPayPal(t, f)
	defer done()
	p := NewPayPalProvider(client)

	for i := 0; i < 2; i++ {
		session, err := p.CreateCheckout(context.Background(), CheckoutRequest{OrderID: uuid.New(), Amount: 1160, Currency: "USD", Description: "Order"})
		require.NoError(t, err)
		assert.Equal(t, "5O190127", session.ProviderCheckoutID)
		assert.Equal(t, "https://paypal.test/approve", session.RedirectURL)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls))
	assert.Equal(t, "USD", p.SettlementCurrency("VND"))
}

func TestPayPalCapture(t *testing.T) {
	f := &fakePayPal{captureCode: http.StatusCreated, captureBody: `{"id":"5O190127","status":"COMPLETED"}`}
	client, done := newTestPayPal(t, f)
	defer done()

	res, err := NewPayPalProvider(client).Capture(context.Background(), "5O190127")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "5O190127", res.ProviderTxnID)
}

func TestPayPalCaptureAlreadyCaptured(t *testing.T) {
	f := &fakePayPal{
		captureCode: http.StatusUnprocessableEntity,
		captureBody: `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`,
		orderStatus: "COMPLETED",
	}
	client, done := newTestPayPal(t, f)
	defer done()

	res, err := NewPayPalProvider(client).Capture(context.Background(), "5O190127")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestPayPalCaptureOtherErrorIsProviderError(t *testing.T) {
	f := &fakePayPal{captureCode: http.StatusUnprocessableEntity, captureBody: `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED"}]}`}
	client, done := newTestPayPal(t, f)
	defer done()

	_, err := NewPayPalProvider(client).Capture(context.Background(), "5O190127")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindExternalProvider, apperrors.KindOf(err))
}

func TestPayPalVerifyWebhook(t *testing.T) {
	f := &fakePayPal{verifyStatus: "SUCCESS"}
	client, done := newTestPayPal(t, f)
	defer done()
	p := NewPayPalProvider(client)

	payload := []byte(`{"id":"WH-EVT","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","status":"COMPLETED","supplementary_data":{"related_ids":{"order_id":"5O190127"}}}}`)
	event, err := p.VerifyWebhook(context.Background(), payload, paypalHeaders())
	require.NoError(t, err)
	assert.Equal(t, "5O190127", event.ProviderTxnID)
	assert.Equal(t, OutcomeSuccess, event.Outcome)

	denied := []byte(`{"id":"WH-EVT2","event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"CAP-2","supplementary_data":{"related_ids":{"order_id":"5O190127"}}}}`)
	event, err = p.VerifyWebhook(context.Background(), denied, paypalHeaders())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, event.Outcome)

	ignored := []byte(`{"id":"WH-EVT3","event_type":"BILLING.PLAN.CREATED","resource":{}}`)
	_, err = p.VerifyWebhook(context.Background(), ignored, paypalHeaders())
	assert.ErrorIs(t, err, ErrEventIgnored)
}

func TestPayPalVerifyWebhookRejected(t *testing.T) {
	f := &fakePayPal{verifyStatus: "FAILURE"}
	client, done := newTestPayPal(t, f)
	defer done()
	p := NewPayPalProvider(client)

	payload := []byte(`{"id":"WH-EVT","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{}}`)
	_, err := p.VerifyWebhook(context.Background(), payload, paypalHeaders())
	assert.Equal(t, apperrors.KindInvalidSignature, apperrors.KindOf(err))

	_, err = p.VerifyWebhook(context.Background(), payload, http.Header{})
	assert.Equal(t, apperrors.KindInvalidSignature, apperrors.KindOf(err))
}

func TestPayPalPayouts(t *testing.T) {
	f := &fakePayPal{verifyStatus: "SUCCESS"}
	client, done := newTestPayPal(t, f)
	defer done()
	payouts := NewPayPalPayouts(client)

	res, err := payouts.CreatePayout(context.Background(), PayoutRequest{
		SenderBatchID: "wd-1",
		Receiver:      "instructor@example.com",
		Amount:        1000,
		Currency:      "USD",
		Note:          "Withdrawal",
	})
	require.NoError(t, err)
	assert.Equal(t, "BATCH-9", res.BatchID)
	assert.Equal(t, "payout-wd-1", f.payoutRequestID)
	sent := f.payout()
	header := sent["sender_batch_header"].(map[string]any)
	assert.Equal(t, "wd-1", header["sender_batch_id"])
	item := sent["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "10.00", item["amount"].(map[string]any)["value"])

	payload := []byte(`{"id":"WH-P","event_type":"PAYMENT.PAYOUTS-ITEM.FAILED","resource":{"payout_batch_id":"BATCH-9","payout_item_id":"ITEM-1","errors":{"name":"RECEIVER_UNREGISTERED","message":"Receiver is unregistered"}}}`)
	event, err := payouts.VerifyPayoutWebhook(context.Background(), payload, paypalHeaders())
	require.NoError(t, err)
	assert.Equal(t, "BATCH-9", event.BatchID)
	assert.Equal(t, PayoutFailed, event.Outcome)
	assert.Equal(t, "Receiver is unregistered", event.Reason)

	payload = []byte(`{"id":"WH-Q","event_type":"PAYMENT.PAYOUTSBATCH.SUCCESS","resource":{"batch_header":{"payout_batch_id":"BATCH-9"}}}`)
	event, err = payouts.VerifyPayoutWebhook(context.Background(), payload, paypalHeaders())
	require.NoError(t, err)
	assert.Equal(t, PayoutSucceeded, event.Outcome)
}

func TestPayPalPayoutReplayIsReported(t *testing.T) {
	for name, body := range map[string]string{
		"request id":      `{"name":"DUPLICATE_REQUEST_ID","message":"Requested resource ID was already used."}`,
		"sender batch id": `{"name":"VALIDATION_ERROR","details":[{"issue":"SENDER_BATCH_ID_ALREADY_EXISTS"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := &fakePayPal{payoutCode: http.StatusBadRequest, payoutBody: body}
			client, done := newTestPayPal(t, f)
			defer done()

			_, err := NewPayPalPayouts(client).CreatePayout(context.Background(), PayoutRequest{
				SenderBatchID: "wd-2", Receiver: "instructor@example.com", Amount: 1000, Currency: "USD",
			})
			assert.ErrorIs(t, err, ErrPayoutExists)
		})
	}

	f := &fakePayPal{payoutCode: http.StatusUnprocessableEntity, payoutBody: `{"name":"INSUFFICIENT_FUNDS"}`}
	client, done := newTestPayPal(t, f)
	defer done()
	_, err := NewPayPalPayouts(client).CreatePayout(context.Background(), PayoutRequest{
		SenderBatchID: "wd-3", Receiver: "instructor@example.com", Amount: 1000, Currency: "USD",
	})
	assert.NotErrorIs(t, err, ErrPayoutExists)
	assert.True(t, apperrors.IsKind(err, apperrors.KindExternalProvider))
}

func TestPayPalPayoutWebhookCarriesSenderBatchID(t *testing.T) {
	f := &fakePayPal{verifyStatus: "SUCCESS"}
	client, done := newTestPayPal(t, f)
	defer done()
	payouts := NewPayPalPayouts(client)

	payload := []byte(`{"id":"WH-R","event_type":"PAYMENT.PAYOUTS-ITEM.SUCCEEDED","resource":{"payout_batch_id":"BATCH-9","payout_item_id":"ITEM-1","payout_item":{"sender_item_id":"wd-1"}}}`)
	event, err := payouts.VerifyPayoutWebhook(context.Background(), payload, paypalHeaders())
	require.NoError(t, err)
	assert.Equal(t, "BATCH-9", event.BatchID)
	assert.Equal(t, "wd-1", event.SenderBatchID)

	payload = []byte(`{"id":"WH-S","event_type":"PAYMENT.PAYOUTSBATCH.DENIED","resource":{"batch_header":{"sender_batch_header":{"sender_batch_id":"wd-4"}}}}`)
	event, err = payouts.VerifyPayoutWebhook(context.Background(), payload, paypalHeaders())
	require.NoError(t, err)
	assert.Empty(t, event.BatchID)
	assert.Equal(t, "wd-4", event.SenderBatchID)
	assert.Equal(t, PayoutFailed, event.Outcome)
}
