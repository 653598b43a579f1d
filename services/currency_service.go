package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/money"
	"github.com/shopspring/decimal"
)

type ExchangeRateResponse struct {
	Result          string             `json:"result"`
	BaseCode        string             `json:"base_code"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// ExchangeRateService keeps a USD-based rate table from exchangerate-api for six hours.
type ExchangeRateService struct {
	apiKey  string
	baseURL string
	client  *http.Client
	ttl     time.Duration
	now     func() time.Time

	mu        sync.RWMutex
	rates     map[string]decimal.Decimal
	fetchedAt time.Time
}

func NewExchangeRateService(apiKey, baseURL string) *ExchangeRateService {
	return &ExchangeRateService{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		ttl:     6 * time.Hour,
		now:     time.Now,
	}
}

// Rates returns the cached table, fetching it when stale.
func (s *ExchangeRateService) Rates(ctx context.Context) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	if s.rates != nil && s.now().Sub(s.fetchedAt) < s.ttl {
		rates := s.rates
		s.mu.RUnlock()
		return rates, nil
	}
	s.mu.RUnlock()
	return s.Refresh(ctx)
}

// Refresh always hits the API and replaces the cache on success.
func (s *ExchangeRateService) Refresh(ctx context.Context) (map[string]decimal.Decimal, error) {
	if s.apiKey == "" {
		return nil, apperrors.Provider(nil, "exchange rate API key not configured")
	}
	log.Println("Fetching fresh exchange rates from API...")

	url := fmt.Sprintf("%s/%s/latest/USD", s.baseURL, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Provider(err, "failed to build exchange rate request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.Provider(err, "failed to reach exchange rate API")
	}
	defer resp.Body.Close()

	var data ExchangeRateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, apperrors.Provider(err, "failed to decode exchange rates")
	}
	if data.Result != "success" {
		return nil, apperrors.Provider(nil, "currency API returned an error")
	}

	rates := make(map[string]decimal.Decimal, len(data.ConversionRates))
	for code, v := range data.ConversionRates {
		rates[strings.ToUpper(code)] = decimal.NewFromFloat(v)
	}
	rates["USD"] = decimal.NewFromInt(1)

	s.mu.Lock()
	s.rates = rates
	s.fetchedAt = s.now()
	s.mu.Unlock()
	log.Println("Successfully updated currency exchange rate cache.")
	return rates, nil
}

// Rate is units of `to` per unit of `from`, crossed through USD.
func (s *ExchangeRateService) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rates, err := s.Rates(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	fromRate, ok := rates[from]
	if !ok || fromRate.IsZero() {
		return decimal.Zero, apperrors.Provider(nil, "%s exchange rate not found in API response", from)
	}
	toRate, ok := rates[to]
	if !ok {
		return decimal.Zero, apperrors.Provider(nil, "%s exchange rate not found in API response", to)
	}
	return toRate.Div(fromRate), nil
}

// Convert returns the amount in `to` minor units and the rate used.
func (s *ExchangeRateService) Convert(ctx context.Context, amount int64, from, to string) (int64, decimal.Decimal, error) {
	rate, err := s.Rate(ctx, from, to)
	if err != nil {
		return 0, decimal.Zero, err
	}
	return money.Convert(amount, from, to, rate), rate, nil
}
