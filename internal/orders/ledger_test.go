package orders_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/logging"
	"github.com/ariefcatur/go-checkout-engine/internal/memstore"
	"github.com/ariefcatur/go-checkout-engine/internal/orders"
)

var now = time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)

func newLedger() (*orders.Ledger, *memstore.Store) {
	s := memstore.New()
	return &orders.Ledger{
		Repo: s.Orders(), Outbox: s.Outbox(), Tx: s,
		Log: logging.Discard(), Service: "test",
		Now: func() time.Time { return now },
	}, s
}

func draft() orders.Draft {
	return orders.Draft{
		UserID: "u1",
		Lines: []orders.Line{
			{ProductID: "p1", Quantity: 2, UnitPriceAtPurchase: 10000, LineTotal: 20000},
		},
		Subtotal:     20000,
		ShippingCost: 5000,
		TotalAmount:  25000,
		Currency:     "IDR",
	}
}

func TestCreateRejectsAmountsThatDoNotAddUp(t *testing.T) {
	l, s := newLedger()
	cases := map[string]func(d *orders.Draft){
		"no lines":       func(d *orders.Draft) { d.Lines = nil; d.Subtotal = 0; d.TotalAmount = 5000 },
		"line total":     func(d *orders.Draft) { d.Lines[0].LineTotal = 1 },
		"subtotal":       func(d *orders.Draft) { d.Subtotal = 1; d.TotalAmount = 5001 },
		"total":          func(d *orders.Draft) { d.TotalAmount = 1 },
		"negative total": func(d *orders.Draft) { d.DiscountAmount = 30000; d.TotalAmount = -5000 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := draft()
			mutate(&d)
			_, err := l.Create(context.Background(), d)
			require.ErrorIs(t, err, apperr.ErrInvariantViolation)
			e, _ := apperr.As(err)
			assert.Equal(t, "internal error", e.Message)
			assert.NotEmpty(t, e.Detail)
		})
	}
	all, err := s.Orders().List(context.Background(), orders.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTransitionStatusWritesHistoryAndEvent(t *testing.T) {
	ctx := context.Background()
	l, s := newLedger()
	o, err := l.Create(ctx, draft())
	require.NoError(t, err)

	_, err = l.TransitionStatus(ctx, o.ID, orders.StatusConfirmed, "admin-1", "")
	require.NoError(t, err)
	got, err := l.TransitionStatus(ctx, o.ID, orders.StatusShipped, "admin-1", "via JNE")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, got.Status)

	history, err := l.History(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"pending", "confirmed", "shipped"},
		[]string{history[0].Status, history[1].Status, history[2].Status})
	assert.Equal(t, "via JNE", history[2].Note)

	recs, err := s.Outbox().FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, orders.EventOrderStatusChanged, recs[2].EventType)

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(recs[2].Payload, &env))
	var p orders.OrderStatusChangedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, orders.StatusConfirmed, p.From)
	assert.Equal(t, orders.StatusShipped, p.To)
}

func TestTransitionStatusRejectsIllegalMoves(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	o, err := l.Create(ctx, draft())
	require.NoError(t, err)

	_, err = l.TransitionStatus(ctx, o.ID, orders.StatusDelivered, "admin-1", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = l.TransitionStatus(ctx, o.ID, orders.StatusCancelled, "admin-1", "")
	require.NoError(t, err)
	_, err = l.TransitionStatus(ctx, o.ID, orders.StatusConfirmed, "admin-1", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	history, err := l.History(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "rejected moves leave no history")
}

func TestCannotDeliverWhenPaymentFailed(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	o, err := l.Create(ctx, draft())
	require.NoError(t, err)

	for _, st := range []orders.Status{orders.StatusConfirmed, orders.StatusShipped} {
		_, err = l.TransitionStatus(ctx, o.ID, st, "admin-1", "")
		require.NoError(t, err)
	}
	_, err = l.SetPaymentStatus(ctx, o.ID, orders.PaymentFailed, "psp")
	require.NoError(t, err)

	_, err = l.TransitionStatus(ctx, o.ID, orders.StatusDelivered, "admin-1", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestSetPaymentStatusOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	o, err := l.Create(ctx, draft())
	require.NoError(t, err)

	got, err := l.SetPaymentStatus(ctx, o.ID, orders.PaymentPaid, "psp")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, got.PaymentStatus)

	_, err = l.SetPaymentStatus(ctx, o.ID, orders.PaymentFailed, "psp")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	history, err := l.History(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, orders.KindPayment, history[1].Kind)
}

func TestSetTracking(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger()
	o, err := l.Create(ctx, draft())
	require.NoError(t, err)

	_, err = l.SetTracking(ctx, o.ID, "  ", "admin-1")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err := l.SetTracking(ctx, o.ID, "JNE123", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "JNE123", got.TrackingNumber)

	_, err = l.TransitionStatus(ctx, o.ID, orders.StatusCancelled, "admin-1", "")
	require.NoError(t, err)
	_, err = l.SetTracking(ctx, o.ID, "JNE456", "admin-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestHistoryOfUnknownOrder(t *testing.T) {
	l, _ := newLedger()
	_, err := l.History(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestOrderNumbersAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		n := orders.NewOrderNumber()
		require.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
}

func TestAddNote(t *testing.T) {
	ctx := context.Background()
	l, s := newLedger()
	o, err := l.Create(ctx, draft())
	require.NoError(t, err)

	_, err = l.AddNote(ctx, o.ID, "   ", "admin-1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = l.AddNote(ctx, "missing", "call first", "admin-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	history, err := l.AddNote(ctx, o.ID, " call before delivery ", "admin-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, orders.KindNote, history[1].Kind)
	assert.Equal(t, "call before delivery", history[1].Note)
	assert.Equal(t, string(orders.StatusPending), history[1].Status)
	assert.Equal(t, "admin-1", history[1].Actor)

	got, err := l.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)

	recs, err := s.Outbox().FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "notes publish nothing")
}
