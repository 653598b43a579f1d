package payments

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const stripeSecret = "whsec_test"

func newTestStripe(apiBase string) *StripeProvider {
	return NewStripeProvider(StripeConfig{
		APIBase:       apiBase,
		SecretKey:     "sk_test",
		WebhookSecret: stripeSecret,
		SuccessURL:    "https://shop.test/success",
		CancelURL:     "https://shop.test/cancel",
	})
}

func stripeHeaders(payload []byte, at time.Time) http.Header {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: stripeSecret, Timestamp: at})
	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)
	return h
}

func sessionEvent(eventType, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","type":%q,"data":{"object":{"id":"cs_123","payment_status":%q,"status":"complete"}}}`,
		eventType, paymentStatus))
}

func TestStripeCreateCheckout(t *testing.T) {
	orderID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, orderID.String(), r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "290000", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "vnd", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "Order", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
		assert.Equal(t, orderID.String(), r.PostForm.Get("metadata[order_id]"))
		assert.Equal(t, "buyer@example.com", r.PostForm.Get("customer_email"))
		w.Write([]byte(`{"id":"cs_123","url":"https://checkout.stripe.test/cs_123"}`))
	}))
	defer srv.Close()

	p := newTestStripe(srv.URL)
	session, err := p.CreateCheckout(context.Background(), CheckoutRequest{
		OrderID: orderID, Amount: 290000, Currency: "VND", Description: "Order", CustomerEmail: "buyer@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_123", session.ProviderCheckoutID)
	assert.JSONEq(t, `{"id":"cs_123","url":"https://checkout.stripe.test/cs_123"}`, string(session.RawResponse))
	assert.Equal(t, "https://checkout.stripe.test/cs_123", session.RedirectURL)
	assert.Equal(t, "VND", p.SettlementCurrency("VND"))
}

func TestStripeCreateCheckoutProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid currency","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestStripe(srv.URL).CreateCheckout(context.Background(), CheckoutRequest{OrderID: uuid.New(), Amount: 100, Currency: "USD"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindExternalProvider, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "Invalid currency")
}

func TestStripeVerifyWebhookMapsEvents(t *testing.T) {
	now := time.Now()
	p := newTestStripe("")

	cases := []struct {
		eventType, paymentStatus string
		want                     Outcome
	}{
		{"checkout.session.completed", "paid", OutcomeSuccess},
		{"checkout.session.completed", "unpaid", OutcomePending},
		{"checkout.session.async_payment_succeeded", "paid", OutcomeSuccess},
		{"checkout.session.async_payment_failed", "unpaid", OutcomeFailed},
		{"checkout.session.expired", "unpaid", OutcomeFailed},
	}
	for _, tc := range cases {
		t.Run(tc.eventType+"/"+tc.paymentStatus, func(t *testing.T) {
			payload := sessionEvent(tc.eventType, tc.paymentStatus)
			event, err := p.VerifyWebhook(context.Background(), payload, stripeHeaders(payload, now))
			require.NoError(t, err)
			assert.Equal(t, tc.want, event.Outcome)
			assert.Equal(t, "cs_123", event.ProviderTxnID)
			assert.Equal(t, payload, event.RawPayload)
		})
	}
}

func TestStripeVerifyWebhookRejectsBadSignatures(t *testing.T) {
	now := time.Now()
	p := newTestStripe("")
	payload := sessionEvent("checkout.session.completed", "paid")

	_, err := p.VerifyWebhook(context.Background(), payload, http.Header{})
	assert.Equal(t, apperrors.KindInvalidSignature, apperrors.KindOf(err))

	tampered := []byte(string(payload) + " ")
	_, err = p.VerifyWebhook(context.Background(), tampered, stripeHeaders(payload, now))
	assert.Equal(t, apperrors.KindInvalidSignature, apperrors.KindOf(err))

	_, err = p.VerifyWebhook(context.Background(), payload, stripeHeaders(payload, now.Add(-10*time.Minute)))
	assert.Equal(t, apperrors.KindInvalidSignature, apperrors.KindOf(err))

	h := http.Header{}
	h.Set("Stripe-Signature", "garbage")
	_, err = p.VerifyWebhook(context.Background(), payload, h)
	assert.Equal(t, apperrors.KindInvalidSignature, apperrors.KindOf(err))
}

func TestStripeVerifyWebhookIgnoresUnknownEvents(t *testing.T) {
	now := time.Now()
	p := newTestStripe("")
	payload := sessionEvent("customer.created", "")
	_, err := p.VerifyWebhook(context.Background(), payload, stripeHeaders(payload, now))
	assert.ErrorIs(t, err, ErrEventIgnored)
}

func TestStripeCapture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/v1/checkout/sessions/cs_paid":
			w.Write([]byte(`{"id":"cs_paid","status":"complete","payment_status":"paid"}`))
		case "/v1/checkout/sessions/cs_open":
			w.Write([]byte(`{"id":"cs_open","status":"open","payment_status":"unpaid"}`))
		default:
			w.Write([]byte(`{"id":"cs_gone","status":"expired","payment_status":"unpaid"}`))
		}
	}))
	defer srv.Close()
	p := newTestStripe(srv.URL)

	res, err := p.Capture(context.Background(), "cs_paid")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)

	res, err = p.Capture(context.Background(), "cs_open")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, res.Outcome)

	res, err = p.Capture(context.Background(), "cs_gone")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

func TestStripeVerifyWebhookRejectsUnparsableEvents(t *testing.T) {
	now := time.Now()
	p := newTestStripe("")

	payload := []byte(`{"id":"evt_2","type":"checkout.session.completed"`)
	_, err := p.VerifyWebhook(context.Background(), payload, stripeHeaders(payload, now))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	payload = []byte(`{"id":"evt_3","type":"checkout.session.completed","data":{"object":{"payment_status":"paid"}}}`)
	_, err = p.VerifyWebhook(context.Background(), payload, stripeHeaders(payload, now))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
