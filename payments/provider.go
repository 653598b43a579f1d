package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomePending Outcome = "PENDING"
	OutcomeFailed  Outcome = "FAILED"
)

// ErrEventIgnored marks a verified webhook the engine does not act on.
var ErrEventIgnored = errors.New("webhook event ignored")

type CheckoutRequest struct {
	OrderID       uuid.UUID
	Amount        int64
	Currency      string
	Description   string
	CustomerEmail string
	PhoneNumber   string
}

type CheckoutSession struct {
	ProviderCheckoutID string
	RedirectURL        string
	RawResponse        []byte
}

type NormalizedEvent struct {
	Provider      models.PaymentProvider
	ProviderTxnID string
	Outcome       Outcome
	EventType     string
	RawPayload    []byte
}

type CaptureResult struct {
	ProviderTxnID string
	Outcome       Outcome
	RawResponse   []byte
}

// Provider is implemented once per payment provider. Each variant owns its wire
// format and signature scheme.
type Provider interface {
	Name() models.PaymentProvider
	// SettlementCurrency is the currency the provider charges in for an order priced in orderCurrency.
	SettlementCurrency(orderCurrency string) string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*NormalizedEvent, error)
	Capture(ctx context.Context, providerTxnID string) (*CaptureResult, error)
}

type Registry map[models.PaymentProvider]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

func (r Registry) Get(name string) (Provider, error) {
	p, ok := r[models.PaymentProvider(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return nil, apperrors.Validation("unknown payment provider %q", name)
	}
	return p, nil
}
