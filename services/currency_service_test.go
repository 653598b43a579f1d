package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateServer(t *testing.T, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/key/latest/USD", r.URL.Path)
		w.Write([]byte(`{"result":"success","base_code":"USD","conversion_rates":{"USD":1,"VND":25000,"KES":129,"EUR":0.5}}`))
	}))
}

func TestExchangeRateConvert(t *testing.T) {
	var calls int32
	srv := newRateServer(t, &calls)
	defer srv.Close()
	rates := NewExchangeRateService("key", srv.URL)

	amount, rate, err := rates.Convert(context.Background(), 250000, "VND", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amount)
	assert.Equal(t, "0.00004", rate.String())

	amount, _, err = rates.Convert(context.Background(), 1000, "EUR", "KES")
	require.NoError(t, err)
	assert.Equal(t, int64(258000), amount)

	amount, rate, err = rates.Convert(context.Background(), 777, "USD", "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(777), amount)
	assert.Equal(t, "1", rate.String())

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExchangeRateCacheExpires(t *testing.T) {
	var calls int32
	srv := newRateServer(t, &calls)
	defer srv.Close()
	rates := NewExchangeRateService("key", srv.URL)
	now := time.Unix(1_700_000_000, 0)
	rates.now = func() time.Time { return now }

	_, err := rates.Rates(context.Background())
	require.NoError(t, err)
	now = now.Add(5 * time.Hour)
	_, err = rates.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	now = now.Add(2 * time.Hour)
	_, err = rates.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExchangeRateErrors(t *testing.T) {
	_, err := NewExchangeRateService("", "http://unused").Rates(context.Background())
	assert.Error(t, err)

	var calls int32
	srv := newRateServer(t, &calls)
	defer srv.Close()
	_, err = NewExchangeRateService("key", srv.URL).Rate(context.Background(), "USD", "XYZ")
	assert.Error(t, err)
}
