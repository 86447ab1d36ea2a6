package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-checkout-engine/internal/logging"
	"github.com/ariefcatur/go-checkout-engine/internal/memstore"
	"github.com/ariefcatur/go-checkout-engine/internal/metrics"
	"github.com/ariefcatur/go-checkout-engine/internal/outbox"
)

type recorder struct {
	sent   []string
	failAt int // 1-based publish call that fails; 0 never fails
	calls  int
}

func (r *recorder) Publish(_ context.Context, rec outbox.Record) error {
	r.calls++
	if r.calls == r.failAt {
		return errors.New("broker unavailable")
	}
	r.sent = append(r.sent, rec.EventID)
	return nil
}

func seed(t *testing.T, s *memstore.Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, s.Outbox().Add(context.Background(), outbox.Record{
			EventID:   fmt.Sprintf("ev-%d", i),
			Topic:     "order.created",
			Key:       "order-1",
			EventType: "OrderCreated",
			Payload:   []byte(`{}`),
			CreatedAt: time.Date(2025, 6, 10, 10, 0, i, 0, time.UTC),
		}))
	}
}

func newRelay(s *memstore.Store, p outbox.Publisher, batch int) *outbox.Relay {
	return &outbox.Relay{
		Repo: s.Outbox(), Tx: s, Publisher: p,
		Log: logging.Discard(), Metrics: metrics.New(), BatchSize: batch,
	}
}

func TestFlushPublishesInOrderAndMarksSent(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed(t, s, 5)
	pub := &recorder{}
	r := newRelay(s, pub, 3)

	n, err := r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = r.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []string{"ev-1", "ev-2", "ev-3", "ev-4", "ev-5"}, pub.sent)
}

func TestFlushKeepsPartialProgress(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed(t, s, 4)
	pub := &recorder{failAt: 3}
	r := newRelay(s, pub, 10)

	n, err := r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := s.Outbox().FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "ev-3", pending[0].EventID)

	n, err = r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ev-1", "ev-2", "ev-3", "ev-4"}, pub.sent)
}

func TestFlushFailsWhenNothingGoesOut(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed(t, s, 2)
	r := newRelay(s, &recorder{failAt: 1}, 10)

	n, err := r.Flush(ctx)
	assert.Error(t, err)
	assert.Zero(t, n)

	pending, err := s.Outbox().FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestRunStopsWithContext(t *testing.T) {
	s := memstore.New()
	seed(t, s, 1)
	pub := &recorder{}
	r := newRelay(s, pub, 10)
	r.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		pending, _ := s.Outbox().FetchPending(context.Background(), 10)
		return len(pending) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"ev-1"}, pub.sent)
}
