package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/money"
)

type PayPalConfig struct {
	APIBase      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	ReturnURL    string
	CancelURL    string
}

// PayPalClient is shared by checkout and payouts.
type PayPalClient struct {
	cfg    PayPalConfig
	http   *http.Client
	tokens *TokenCache
}

func NewPayPalClient(cfg PayPalConfig) *PayPalClient {
	client := &http.Client{Timeout: 15 * time.Second}
	return &PayPalClient{
		cfg:    cfg,
		http:   client,
		tokens: NewTokenCache("PayPal", clientCredentials(client, cfg.APIBase+"/v1/oauth2/token", cfg.ClientID, cfg.ClientSecret)),
	}
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type PayPalOrder struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Links  []paypalLink `json:"links"`
}

type paypalErrorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e paypalErrorBody) hasIssue(issue string) bool {
	for _, d := range e.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

type paypalStatusError struct {
	Status int
	Body   paypalErrorBody
}

func (e *paypalStatusError) Error() string {
	return fmt.Sprintf("paypal returned status %d: %s %s", e.Status, e.Body.Name, e.Body.Message)
}

// do sends an authenticated JSON request; non-2xx responses come back as *paypalStatusError.
func (c *PayPalClient) do(ctx context.Context, method, path string, payload any, headers map[string]string, out any) ([]byte, error) {
	accessToken, err := c.tokens.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("paypal token: %w", err)
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBase+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if resp.StatusCode >= 300 {
		statusErr := &paypalStatusError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, &statusErr.Body)
		return raw, statusErr
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, err
		}
	}
	return raw, nil
}

type verifySignatureRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

// VerifyWebhookSignature asks PayPal to validate the transmission headers against the payload.
func (c *PayPalClient) VerifyWebhookSignature(ctx context.Context, payload []byte, headers http.Header) error {
	req := verifySignatureRequest{
		AuthAlgo:         headers.Get("Paypal-Auth-Algo"),
		CertURL:          headers.Get("Paypal-Cert-Url"),
		TransmissionID:   headers.Get("Paypal-Transmission-Id"),
		TransmissionSig:  headers.Get("Paypal-Transmission-Sig"),
		TransmissionTime: headers.Get("Paypal-Transmission-Time"),
		WebhookID:        c.cfg.WebhookID,
		WebhookEvent:     json.RawMessage(payload),
	}
	if req.TransmissionID == "" || req.TransmissionSig == "" || req.CertURL == "" {
		return apperrors.InvalidSignature("missing PayPal transmission headers")
	}
	if !json.Valid(payload) {
		return apperrors.InvalidSignature("paypal webhook body is not JSON")
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", req, nil, &result); err != nil {
		return apperrors.Provider(err, "paypal signature verification call failed")
	}
	if result.VerificationStatus != "SUCCESS" {
		return apperrors.InvalidSignature("paypal signature verification returned %s", result.VerificationStatus)
	}
	return nil
}

type paypalEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// PayPalProvider is the checkout side of PayPal. It always settles in USD.
type PayPalProvider struct {
	client *PayPalClient
}

func NewPayPalProvider(client *PayPalClient) *PayPalProvider {
	return &PayPalProvider{client: client}
}

func (p *PayPalProvider) Name() models.PaymentProvider { return models.ProviderPayPal }

func (p *PayPalProvider) SettlementCurrency(string) string { return "USD" }

func (p *PayPalProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": req.OrderID.String(),
				"custom_id":    req.OrderID.String(),
				"description":  req.Description,
				"amount": map[string]string{
					"currency_code": req.Currency,
					"value":         money.Plain(req.Amount, req.Currency),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": p.client.cfg.ReturnURL,
			"cancel_url": p.client.cfg.CancelURL,
		},
	}
	headers := map[string]string{"PayPal-Request-Id": fmt.Sprintf("checkout-%s-%d%s", req.OrderID, req.Amount, req.Currency)}

	var order PayPalOrder
	raw, err := p.client.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, headers, &order)
	if err != nil {
		return nil, apperrors.Provider(err, "failed to create PayPal order")
	}
	if order.ID == "" {
		return nil, apperrors.Provider(nil, "paypal returned an order without an id")
	}

	var approve string
	for _, l := range order.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			approve = l.Href
			break
		}
	}
	return &CheckoutSession{ProviderCheckoutID: order.ID, RedirectURL: approve, RawResponse: raw}, nil
}

// Capture finalizes an approved order. An order PayPal reports as already
// captured is read back instead of failing.
func (p *PayPalProvider) Capture(ctx context.Context, providerTxnID string) (*CaptureResult, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(providerTxnID)
	headers := map[string]string{"PayPal-Request-Id": "capture-" + providerTxnID}

	var order PayPalOrder
	raw, err := p.client.do(ctx, http.MethodPost, path+"/capture", nil, headers, &order)
	if err != nil {
		var statusErr *paypalStatusError
		if !errors.As(err, &statusErr) || statusErr.Status != http.StatusUnprocessableEntity || !statusErr.Body.hasIssue("ORDER_ALREADY_CAPTURED") {
			return nil, apperrors.Provider(err, "failed to capture PayPal order")
		}
		raw, err = p.client.do(ctx, http.MethodGet, path, nil, nil, &order)
		if err != nil {
			return nil, apperrors.Provider(err, "failed to read captured PayPal order")
		}
	}
	return &CaptureResult{ProviderTxnID: providerTxnID, Outcome: paypalOrderOutcome(order.Status), RawResponse: raw}, nil
}

func paypalOrderOutcome(status string) Outcome {
	switch status {
	case "COMPLETED":
		return OutcomeSuccess
	case "VOIDED":
		return OutcomeFailed
	}
	return OutcomePending
}

func (p *PayPalProvider) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*NormalizedEvent, error) {
	if err := p.client.VerifyWebhookSignature(ctx, payload, headers); err != nil {
		return nil, err
	}

	var event paypalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, apperrors.Validation("cannot parse paypal event: %v", err)
	}

	var resource struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	}
	if err := json.Unmarshal(event.Resource, &resource); err != nil {
		return nil, apperrors.Validation("cannot parse paypal resource: %v", err)
	}

	normalized := &NormalizedEvent{Provider: models.ProviderPayPal, EventType: event.EventType, RawPayload: payload}
	switch event.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		normalized.ProviderTxnID, normalized.Outcome = resource.ID, OutcomePending
	case "CHECKOUT.ORDER.COMPLETED":
		normalized.ProviderTxnID, normalized.Outcome = resource.ID, OutcomeSuccess
	case "PAYMENT.CAPTURE.COMPLETED":
		normalized.ProviderTxnID, normalized.Outcome = resource.SupplementaryData.RelatedIDs.OrderID, OutcomeSuccess
	case "PAYMENT.CAPTURE.PENDING":
		normalized.ProviderTxnID, normalized.Outcome = resource.SupplementaryData.RelatedIDs.OrderID, OutcomePending
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		normalized.ProviderTxnID, normalized.Outcome = resource.SupplementaryData.RelatedIDs.OrderID, OutcomeFailed
	default:
		return nil, ErrEventIgnored
	}
	if normalized.ProviderTxnID == "" {
		return nil, apperrors.Validation("paypal event %s carries no order id", event.ID)
	}
	return normalized, nil
}
