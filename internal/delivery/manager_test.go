package delivery_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/delivery"
	"github.com/ariefcatur/go-checkout-engine/internal/logging"
	"github.com/ariefcatur/go-checkout-engine/internal/memstore"
	"github.com/ariefcatur/go-checkout-engine/internal/metrics"
	"github.com/ariefcatur/go-checkout-engine/internal/orders"
)

func newManager() (*delivery.Manager, *memstore.Store) {
	s := memstore.New()
	return &delivery.Manager{
		Repo:    s.Slots(),
		Log:     logging.Discard(),
		Metrics: metrics.New(),
		Now:     func() time.Time { return time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC) },
	}, s
}

func TestReserveNeverOverbooks(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager()
	slot, err := m.CreateSlot(ctx, delivery.NewSlot{Date: "2025-06-11", StartTime: "09:00", EndTime: "12:00", MaxCapacity: 7})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var ok, full atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Reserve(ctx, slot.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case apperr.CodeOf(err) == apperr.CodeCapacityExceeded:
				full.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 7, ok.Load())
	assert.EqualValues(t, 43, full.Load())
	got, err := m.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.ReservedCount)
}

func TestReserveRejectsClosedAndMissingSlots(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager()
	closed := false
	slot, err := m.CreateSlot(ctx, delivery.NewSlot{Date: "2025-06-11", StartTime: "09:00", EndTime: "12:00", MaxCapacity: 1, IsAvailable: &closed})
	require.NoError(t, err)

	_, err = m.Reserve(ctx, slot.ID)
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)
	_, err = m.Reserve(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)
}

func TestReleaseFreesCapacity(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager()
	slot, err := m.CreateSlot(ctx, delivery.NewSlot{Date: "2025-06-11", StartTime: "09:00", EndTime: "12:00", MaxCapacity: 1})
	require.NoError(t, err)

	_, err = m.Reserve(ctx, slot.ID)
	require.NoError(t, err)
	_, err = m.Reserve(ctx, slot.ID)
	require.ErrorIs(t, err, apperr.ErrCapacityExceeded)

	require.NoError(t, m.Release(ctx, slot.ID))
	require.NoError(t, m.Release(ctx, slot.ID), "extra release is a logged no-op")

	got, err := m.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ReservedCount)
}

func TestListAvailableSlots(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager()
	mk := func(date, start string, capacity int) delivery.Slot {
		s, err := m.CreateSlot(ctx, delivery.NewSlot{Date: date, StartTime: start, EndTime: "23:00", MaxCapacity: capacity})
		require.NoError(t, err)
		return s
	}
	late := mk("2025-06-12", "15:00", 2)
	early := mk("2025-06-12", "09:00", 2)
	first := mk("2025-06-11", "18:00", 2)
	mk("2025-06-09", "09:00", 2)
	full := mk("2025-06-11", "09:00", 1)
	_, err := m.Reserve(ctx, full.ID)
	require.NoError(t, err)

	got, err := m.ListAvailableSlots(ctx, time.Date(2025, 6, 10, 17, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{first.ID, early.ID, late.ID}, ids)
}

func TestCreateSlotValidation(t *testing.T) {
	m, _ := newManager()
	bad := map[string]delivery.NewSlot{
		"date":         {Date: "11/06/2025", StartTime: "09:00", EndTime: "12:00", MaxCapacity: 1},
		"start_time":   {Date: "2025-06-11", StartTime: "9am", EndTime: "12:00", MaxCapacity: 1},
		"end_time":     {Date: "2025-06-11", StartTime: "12:00", EndTime: "09:00", MaxCapacity: 1},
		"max_capacity": {Date: "2025-06-11", StartTime: "09:00", EndTime: "12:00", MaxCapacity: 0},
	}
	for field, in := range bad {
		t.Run(field, func(t *testing.T) {
			_, err := m.CreateSlot(context.Background(), in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			e, _ := apperr.As(err)
			assert.Equal(t, field, e.Field)
		})
	}
}

func TestReconcileRepairsDrift(t *testing.T) {
	ctx := context.Background()
	m, s := newManager()
	slot, err := m.CreateSlot(ctx, delivery.NewSlot{Date: "2025-06-11", StartTime: "09:00", EndTime: "12:00", MaxCapacity: 3})
	require.NoError(t, err)

	// a reservation with no order behind it
	_, err = m.Reserve(ctx, slot.ID)
	require.NoError(t, err)
	_, err = m.Reserve(ctx, slot.ID)
	require.NoError(t, err)
	require.NoError(t, s.Orders().Insert(ctx, orders.Order{
		ID: "o1", OrderNumber: "ORD-1", Status: orders.StatusConfirmed, DeliverySlotID: &slot.ID,
	}))

	fixed, err := m.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, fixed, 1)
	assert.Equal(t, 2, fixed[0].Before)
	assert.Equal(t, 1, fixed[0].After)

	got, err := m.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReservedCount)
}
