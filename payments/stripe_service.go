package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeConfig struct {
	APIBase       string
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type StripeProvider struct {
	cfg       StripeConfig
	api       *client.API
	tolerance time.Duration
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 15 * time.Second},
		MaxNetworkRetries: stripe.Int64(2),
	}
	if cfg.APIBase != "" {
		backendConfig.URL = stripe.String(strings.TrimRight(cfg.APIBase, "/"))
	}
	api := client.New(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	})
	return &StripeProvider{cfg: cfg, api: api, tolerance: 5 * time.Minute}
}

func (s *StripeProvider) Name() models.PaymentProvider { return models.ProviderStripe }

// Stripe charges in the order's own currency.
func (s *StripeProvider) SettlementCurrency(orderCurrency string) string { return orderCurrency }

func (s *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderID.String()),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
	}
	params.AddMetadata("order_id", req.OrderID.String())
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, stripeProviderError(err, "failed to create stripe checkout session")
	}
	if session.ID == "" {
		return nil, apperrors.Provider(nil, "stripe returned a session without an id")
	}
	return &CheckoutSession{ProviderCheckoutID: session.ID, RedirectURL: session.URL, RawResponse: lastResponse(session.LastResponse)}, nil
}

func (s *StripeProvider) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*NormalizedEvent, error) {
	header := headers.Get("Stripe-Signature")
	if header == "" {
		return nil, apperrors.InvalidSignature("missing Stripe-Signature header")
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                s.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	switch {
	case errors.Is(err, webhook.ErrNotSigned), errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature), errors.Is(err, webhook.ErrTooOld):
		return nil, apperrors.InvalidSignature("stripe signature rejected: %v", err)
	case err != nil:
		return nil, apperrors.Validation("cannot parse stripe event: %v", err)
	}

	eventType := string(event.Type)
	var outcome Outcome
	var session stripe.CheckoutSession
	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		if event.Data == nil || json.Unmarshal(event.Data.Raw, &session) != nil {
			return nil, apperrors.Validation("stripe event %s carries no checkout session", event.ID)
		}
	default:
		return nil, ErrEventIgnored
	}
	switch eventType {
	case "checkout.session.completed":
		outcome = stripeOutcome(&session)
	case "checkout.session.async_payment_succeeded":
		outcome = OutcomeSuccess
	default:
		outcome = OutcomeFailed
	}
	if session.ID == "" {
		return nil, apperrors.Validation("stripe event %s carries no session id", event.ID)
	}

	return &NormalizedEvent{
		Provider:      models.ProviderStripe,
		ProviderTxnID: session.ID,
		Outcome:       outcome,
		EventType:     eventType,
		RawPayload:    payload,
	}, nil
}

// Capture re-reads the session; checkout sessions capture on completion.
func (s *StripeProvider) Capture(ctx context.Context, providerTxnID string) (*CaptureResult, error) {
	session, err := s.api.CheckoutSessions.Get(providerTxnID, &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return nil, stripeProviderError(err, "failed to read stripe checkout session")
	}
	outcome := stripeOutcome(session)
	if session.Status == stripe.CheckoutSessionStatusExpired {
		outcome = OutcomeFailed
	}
	return &CaptureResult{ProviderTxnID: session.ID, Outcome: outcome, RawResponse: lastResponse(session.LastResponse)}, nil
}

func stripeOutcome(session *stripe.CheckoutSession) Outcome {
	switch session.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return OutcomeSuccess
	}
	return OutcomePending
}

func stripeProviderError(err error, msg string) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return apperrors.Provider(err, "%s: %s", msg, se.Msg)
	}
	return apperrors.Provider(err, "%s", msg)
}

func lastResponse(resp *stripe.APIResponse) []byte {
	if resp == nil {
		return nil
	}
	return resp.RawJSON
}
