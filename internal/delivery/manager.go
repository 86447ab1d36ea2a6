package delivery

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/metrics"
)

// Manager is the Delivery Capacity Manager. It never over-books: every
// reservation is a single conditional increment in the repository.
type Manager struct {
	Repo    Repository
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type NewSlot struct {
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	MaxCapacity int    `json:"max_capacity"`
	IsAvailable *bool  `json:"is_available,omitempty"`
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *Manager) ListAvailableSlots(ctx context.Context, from time.Time) ([]Slot, error) {
	return m.Repo.ListAvailable(ctx, Day(from))
}

// Get returns the slot, or SlotUnavailable when it does not exist.
func (m *Manager) Get(ctx context.Context, slotID string) (Slot, error) {
	s, err := m.Repo.Get(ctx, slotID)
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		return Slot{}, apperr.SlotUnavailable(slotID, "slot does not exist")
	}
	return s, err
}

// Reserve takes one unit of capacity. A full slot yields CapacityExceeded.
func (m *Manager) Reserve(ctx context.Context, slotID string) (Reservation, error) {
	s, err := m.Get(ctx, slotID)
	if err != nil {
		return Reservation{}, err
	}
	if !s.IsAvailable {
		m.observe("unavailable")
		return Reservation{}, apperr.SlotUnavailable(slotID, "slot is closed")
	}

	ok, err := m.Repo.TryReserve(ctx, slotID)
	if err != nil {
		return Reservation{}, err
	}
	if !ok {
		m.observe("full")
		return Reservation{}, apperr.CapacityExceeded(slotID)
	}
	m.observe("reserved")
	return Reservation{SlotID: slotID, ReservedAt: m.now()}, nil
}

// Release frees one unit of capacity, used when an order holding the slot is
// cancelled.
func (m *Manager) Release(ctx context.Context, slotID string) error {
	ok, err := m.Repo.Release(ctx, slotID)
	if err != nil {
		return err
	}
	if !ok {
		m.log().WithField("slot_id", slotID).Warn("release on a slot with nothing reserved")
		m.observe("release_noop")
		return nil
	}
	m.observe("released")
	return nil
}

func (m *Manager) CreateSlot(ctx context.Context, in NewSlot) (Slot, error) {
	date, err := time.Parse(DateLayout, strings.TrimSpace(in.Date))
	if err != nil {
		return Slot{}, apperr.Validation("date", "date must be YYYY-MM-DD")
	}
	start, err := time.Parse(TimeLayout, strings.TrimSpace(in.StartTime))
	if err != nil {
		return Slot{}, apperr.Validation("start_time", "start time must be HH:MM")
	}
	end, err := time.Parse(TimeLayout, strings.TrimSpace(in.EndTime))
	if err != nil {
		return Slot{}, apperr.Validation("end_time", "end time must be HH:MM")
	}
	if !end.After(start) {
		return Slot{}, apperr.Validation("end_time", "end time must be after start time")
	}
	if in.MaxCapacity < 1 {
		return Slot{}, apperr.Validation("max_capacity", "capacity must be at least 1")
	}

	s := Slot{
		ID:          uuid.NewString(),
		Date:        Day(date),
		StartTime:   start.Format(TimeLayout),
		EndTime:     end.Format(TimeLayout),
		MaxCapacity: in.MaxCapacity,
		IsAvailable: in.IsAvailable == nil || *in.IsAvailable,
		CreatedAt:   m.now(),
	}
	if err := m.Repo.Create(ctx, s); err != nil {
		return Slot{}, err
	}
	return s, nil
}

func (m *Manager) SetAvailability(ctx context.Context, slotID string, available bool) (Slot, error) {
	if err := m.Repo.SetAvailable(ctx, slotID, available); err != nil {
		return Slot{}, err
	}
	return m.Repo.Get(ctx, slotID)
}

// Reconcile repairs reserved counts that drifted from the orders holding
// each slot, e.g. after a crash outside a transaction.
func (m *Manager) Reconcile(ctx context.Context) ([]Correction, error) {
	fixed, err := m.Repo.Recount(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range fixed {
		entry := m.log().WithFields(logrus.Fields{
			"slot_id": c.SlotID,
			"before":  c.Before,
			"after":   c.After,
			"actual":  c.Actual,
		})
		if c.Actual > c.After {
			entry.Error("slot holds more orders than its capacity")
		} else {
			entry.Warn("slot reserved count corrected")
		}
		if m.Metrics != nil {
			m.Metrics.SlotDrift.Inc()
		}
	}
	return fixed, nil
}

func (m *Manager) observe(result string) {
	if m.Metrics != nil {
		m.Metrics.SlotReservations.WithLabelValues(result).Inc()
	}
}

func (m *Manager) log() logrus.FieldLogger {
	if m.Log != nil {
		return m.Log
	}
	return logrus.StandardLogger()
}
