package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubExpirer struct {
	calls int
	ttl   time.Duration
	n     int
	err   error
}

func (s *stubExpirer) ExpireStale(_ context.Context, olderThan time.Duration) (int, error) {
	s.calls++
	s.ttl = olderThan
	return s.n, s.err
}

func TestExpireStaleOrdersPassesTTL(t *testing.T) {
	stub := &stubExpirer{n: 3}
	ExpireStaleOrders(stub, 24*time.Hour)()

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, 24*time.Hour, stub.ttl)
}

func TestExpireStaleOrdersSurvivesErrors(t *testing.T) {
	stub := &stubExpirer{err: errors.New("db down")}
	assert.NotPanics(t, ExpireStaleOrders(stub, time.Hour))
	assert.Equal(t, 1, stub.calls)
}
