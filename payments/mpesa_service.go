package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/money"
)

type MpesaConfig struct {
	APIBase         string
	TokenURL        string
	APIKey          string
	APISecret       string
	AccountNumber   string
	RouteCode       string
	CallbackURL     string
	TransactionDesc string
	WebhookSecret   string
}

type StkPushRequest struct {
	PhoneNumber            string `json:"phoneNumber"`
	Amount                 string `json:"amount"`
	InvoiceNumber          string `json:"invoiceNumber"`
	SharedShortCode        bool   `json:"sharedShortCode"`
	OrgShortCode           string `json:"orgShortCode"`
	OrgPassKey             string `json:"orgPassKey"`
	CallbackURL            string `json:"callbackUrl"`
	TransactionDescription string `json:"transactionDescription"`
}

type StkPushResponse struct {
	Header struct {
		StatusCode        string `json:"statusCode"`
		StatusDescription string `json:"statusDescription"`
	} `json:"header"`
	Response struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		CustomerMessage     string `json:"CustomerMessage"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
	} `json:"response"`
}

type KcbWebhookPayload struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
			Reference string `json:"Reference"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

var nonNumericRegex = regexp.MustCompile(`[^0-9]`)

func SanitizeMpesaNumber(phone string) (string, error) {
	sanitized := nonNumericRegex.ReplaceAllString(phone, "")

	if (strings.HasPrefix(sanitized, "07") || strings.HasPrefix(sanitized, "01")) && len(sanitized) == 10 {
		return "254" + sanitized[1:], nil
	}
	if (strings.HasPrefix(sanitized, "7") || strings.HasPrefix(sanitized, "1")) && len(sanitized) == 9 {
		return "254" + sanitized, nil
	}
	if strings.HasPrefix(sanitized, "254") && len(sanitized) == 12 {
		return sanitized, nil
	}

	return "", errors.New("invalid M-Pesa phone number format")
}

// MpesaProvider charges through a KCB Buni STK push. The buyer approves on
// their phone, so there is no redirect and the callback carries the result.
type MpesaProvider struct {
	cfg    MpesaConfig
	client *http.Client
	tokens *TokenCache
	now    func() time.Time
}

func NewMpesaProvider(cfg MpesaConfig) *MpesaProvider {
	client := &http.Client{Timeout: 10 * time.Second}
	return &MpesaProvider{
		cfg:    cfg,
		client: client,
		tokens: NewTokenCache("KCB", clientCredentials(client, cfg.TokenURL, cfg.APIKey, cfg.APISecret)),
		now:    time.Now,
	}
}

func (m *MpesaProvider) Name() models.PaymentProvider { return models.ProviderMpesa }

func (m *MpesaProvider) SettlementCurrency(string) string { return "KES" }

func (m *MpesaProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.Currency != "KES" {
		return nil, apperrors.Validation("M-Pesa charges in KES, got %s", req.Currency)
	}
	phone, err := SanitizeMpesaNumber(req.PhoneNumber)
	if err != nil {
		return nil, apperrors.Validation("%v", err)
	}
	if m.cfg.AccountNumber == "" {
		return nil, apperrors.Provider(nil, "KCB account number is not configured")
	}

	accessToken, err := m.tokens.Get(ctx)
	if err != nil {
		return nil, apperrors.Provider(err, "failed to get KCB access token")
	}

	// M-Pesa only moves whole shillings.
	whole := money.ToMajor(req.Amount, req.Currency).Round(0)
	payload := StkPushRequest{
		PhoneNumber:            phone,
		Amount:                 whole.StringFixed(0),
		InvoiceNumber:          fmt.Sprintf("%s-%s", m.cfg.AccountNumber, req.OrderID),
		SharedShortCode:        true,
		CallbackURL:            m.cfg.CallbackURL,
		TransactionDescription: m.cfg.TransactionDesc,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal STK payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIBase+"/stkpush", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Provider(err, "failed to create STK request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("routeCode", m.cfg.RouteCode)
	httpReq.Header.Set("operation", "STKPush")
	httpReq.Header.Set("messageId", fmt.Sprintf("%s_%d", req.OrderID, m.now().UnixNano()))
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.Provider(err, "failed to send STK request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Provider(err, "failed to read STK response body")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		m.tokens.Invalidate()
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("KCB API Error: %s", string(raw))
		return nil, apperrors.Provider(nil, "KCB Buni API returned non-200 status: %d", resp.StatusCode)
	}

	var stk StkPushResponse
	if err := json.Unmarshal(raw, &stk); err != nil {
		return nil, apperrors.Provider(err, "failed to unmarshal STK response")
	}
	if stk.Response.ResponseCode != "0" {
		return nil, apperrors.Provider(nil, "KCB STK Push failed: %s", stk.Response.ResponseDescription)
	}
	if stk.Response.CheckoutRequestID == "" {
		return nil, apperrors.Provider(nil, "KCB STK Push returned no checkout request id")
	}

	log.Println("✅ STK Push initiated successfully for order:", req.OrderID)
	return &CheckoutSession{ProviderCheckoutID: stk.Response.CheckoutRequestID, RawResponse: raw}, nil
}

func (m *MpesaProvider) VerifyWebhook(_ context.Context, payload []byte, headers http.Header) (*NormalizedEvent, error) {
	signature := headers.Get("X-Kcb-Signature")
	if signature == "" {
		return nil, apperrors.InvalidSignature("missing X-Kcb-Signature header")
	}
	if !equalHex(signature, hmacHex(m.cfg.WebhookSecret, payload)) {
		return nil, apperrors.InvalidSignature("kcb signature mismatch")
	}

	var body KcbWebhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, apperrors.Validation("cannot parse webhook payload: %v", err)
	}
	stk := body.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return nil, apperrors.Validation("kcb callback carries no CheckoutRequestID")
	}

	log.Printf("Received KCB callback for MerchantRequestID: %s, CheckoutRequestID: %s, ResultCode: %d",
		stk.MerchantRequestID, stk.CheckoutRequestID, stk.ResultCode)

	outcome := OutcomeSuccess
	if stk.ResultCode != 0 {
		outcome = OutcomeFailed
	}
	return &NormalizedEvent{
		Provider:      models.ProviderMpesa,
		ProviderTxnID: stk.CheckoutRequestID,
		Outcome:       outcome,
		EventType:     "stkCallback",
		RawPayload:    payload,
	}, nil
}

// Capture has nothing to do for STK push; the result only arrives by callback.
func (m *MpesaProvider) Capture(_ context.Context, providerTxnID string) (*CaptureResult, error) {
	return &CaptureResult{ProviderTxnID: providerTxnID, Outcome: OutcomePending}, nil
}
