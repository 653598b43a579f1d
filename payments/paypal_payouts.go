package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/money"
)

type PayoutRequest struct {
	SenderBatchID string
	Receiver      string
	Amount        int64
	Currency      string
	Note          string
}

type PayoutResult struct {
	BatchID     string
	ItemID      string
	BatchStatus string
}

type PayoutOutcome string

const (
	PayoutSucceeded PayoutOutcome = "SUCCEEDED"
	PayoutFailed    PayoutOutcome = "FAILED"
)

// ErrPayoutExists reports that the provider already holds a batch for the
// sender batch id, so the payout went out on an earlier attempt.
var ErrPayoutExists = errors.New("payout batch already exists")

type PayoutEvent struct {
	BatchID string
	// SenderBatchID is the id we sent, which is the withdrawal id.
	SenderBatchID string
	ItemID        string
	Outcome       PayoutOutcome
	Reason        string
	EventType     string
	RawPayload    []byte
}

type PayoutProvider interface {
	CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
	VerifyPayoutWebhook(ctx context.Context, payload []byte, headers http.Header) (*PayoutEvent, error)
}

type PayPalPayouts struct {
	client *PayPalClient
}

func NewPayPalPayouts(client *PayPalClient) *PayPalPayouts {
	return &PayPalPayouts{client: client}
}

// CreatePayout sends a single-item batch. The sender batch id doubles as the
// PayPal-Request-Id, so a retry replays the first response; a reused
// sender_batch_id that PayPal refuses comes back as ErrPayoutExists.
func (p *PayPalPayouts) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	payload := map[string]interface{}{
		"sender_batch_header": map[string]string{
			"sender_batch_id": req.SenderBatchID,
			"email_subject":   "You have a payout!",
			"email_message":   "Your course earnings have been sent to your PayPal account.",
		},
		"items": []map[string]interface{}{
			{
				"recipient_type": "EMAIL",
				"amount": map[string]string{
					"value":    money.Plain(req.Amount, req.Currency),
					"currency": req.Currency,
				},
				"receiver":       req.Receiver,
				"note":           req.Note,
				"sender_item_id": req.SenderBatchID,
			},
		},
	}

	var resp struct {
		BatchHeader struct {
			PayoutBatchID string `json:"payout_batch_id"`
			BatchStatus   string `json:"batch_status"`
		} `json:"batch_header"`
	}
	headers := map[string]string{"PayPal-Request-Id": "payout-" + req.SenderBatchID}
	if _, err := p.client.do(ctx, http.MethodPost, "/v1/payments/payouts", payload, headers, &resp); err != nil {
		var statusErr *paypalStatusError
		if errors.As(err, &statusErr) && statusErr.duplicateBatch() {
			return nil, ErrPayoutExists
		}
		return nil, apperrors.Provider(err, "failed to create PayPal payout")
	}
	if resp.BatchHeader.PayoutBatchID == "" {
		return nil, apperrors.Provider(nil, "paypal returned a payout without a batch id")
	}
	return &PayoutResult{
		BatchID:     resp.BatchHeader.PayoutBatchID,
		ItemID:      req.SenderBatchID,
		BatchStatus: resp.BatchHeader.BatchStatus,
	}, nil
}

func (p *PayPalPayouts) VerifyPayoutWebhook(ctx context.Context, payload []byte, headers http.Header) (*PayoutEvent, error) {
	if err := p.client.VerifyWebhookSignature(ctx, payload, headers); err != nil {
		return nil, err
	}

	var event paypalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, apperrors.Validation("cannot parse paypal event: %v", err)
	}

	var resource struct {
		PayoutBatchID string `json:"payout_batch_id"`
		PayoutItemID  string `json:"payout_item_id"`
		SenderBatchID string `json:"sender_batch_id"`
		PayoutItem    struct {
			SenderItemID string `json:"sender_item_id"`
		} `json:"payout_item"`
		BatchHeader struct {
			PayoutBatchID     string `json:"payout_batch_id"`
			SenderBatchHeader struct {
				SenderBatchID string `json:"sender_batch_id"`
			} `json:"sender_batch_header"`
		} `json:"batch_header"`
		Errors struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(event.Resource, &resource); err != nil {
		return nil, apperrors.Validation("cannot parse paypal payout resource: %v", err)
	}

	out := &PayoutEvent{EventType: event.EventType, RawPayload: payload, ItemID: resource.PayoutItemID}
	for _, id := range []string{resource.SenderBatchID, resource.BatchHeader.SenderBatchHeader.SenderBatchID, resource.PayoutItem.SenderItemID} {
		if id != "" {
			out.SenderBatchID = id
			break
		}
	}
	switch event.EventType {
	case "PAYMENT.PAYOUTSBATCH.SUCCESS":
		out.BatchID, out.Outcome = resource.BatchHeader.PayoutBatchID, PayoutSucceeded
	case "PAYMENT.PAYOUTSBATCH.DENIED":
		out.BatchID, out.Outcome, out.Reason = resource.BatchHeader.PayoutBatchID, PayoutFailed, "payout batch denied"
	case "PAYMENT.PAYOUTS-ITEM.SUCCEEDED":
		out.BatchID, out.Outcome = resource.PayoutBatchID, PayoutSucceeded
	case "PAYMENT.PAYOUTS-ITEM.FAILED", "PAYMENT.PAYOUTS-ITEM.BLOCKED", "PAYMENT.PAYOUTS-ITEM.DENIED",
		"PAYMENT.PAYOUTS-ITEM.RETURNED", "PAYMENT.PAYOUTS-ITEM.REFUNDED", "PAYMENT.PAYOUTS-ITEM.CANCELED":
		out.BatchID, out.Outcome = resource.PayoutBatchID, PayoutFailed
		out.Reason = resource.Errors.Message
		if out.Reason == "" {
			out.Reason = event.EventType
		}
	default:
		return nil, ErrEventIgnored
	}
	if out.BatchID == "" && out.SenderBatchID == "" {
		return nil, apperrors.Validation("paypal payout event %s carries no batch id", event.ID)
	}
	return out, nil
}

func (e *paypalStatusError) duplicateBatch() bool {
	if e.Status != http.StatusBadRequest && e.Status != http.StatusConflict && e.Status != http.StatusUnprocessableEntity {
		return false
	}
	return e.Body.Name == "DUPLICATE_REQUEST_ID" || e.Body.hasIssue("DUPLICATE_REQUEST_ID") ||
		e.Body.hasIssue("SENDER_BATCH_ID_ALREADY_EXISTS")
}
