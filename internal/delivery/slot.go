package delivery

import (
	"context"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Slot is a delivery window with a hard order ceiling.
// 0 <= ReservedCount <= MaxCapacity always holds.
type Slot struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	MaxCapacity   int       `json:"max_capacity"`
	ReservedCount int       `json:"reserved_count"`
	IsAvailable   bool      `json:"is_available"`
	CreatedAt     time.Time `json:"created_at"`
}

// Open reports whether the slot would be listed for a customer shopping on day.
func (s Slot) Open(day time.Time) bool {
	return s.IsAvailable && s.ReservedCount < s.MaxCapacity && !s.Date.Before(Day(day))
}

func (s Slot) Remaining() int { return s.MaxCapacity - s.ReservedCount }

// Reservation is one unit of slot capacity held by an order.
type Reservation struct {
	SlotID     string    `json:"slot_id"`
	ReservedAt time.Time `json:"reserved_at"`
}

// Correction records a reserved count rewritten by reconciliation.
type Correction struct {
	SlotID string `json:"slot_id"`
	Before int    `json:"before"`
	After  int    `json:"after"`
	// Actual is the number of live orders holding the slot; it differs from
	// After only when more orders hold the slot than it has capacity for.
	Actual int `json:"actual"`
}

type Repository interface {
	Get(ctx context.Context, id string) (Slot, error)
	// ListAvailable returns open slots dated on or after from, ordered by
	// date then start time.
	ListAvailable(ctx context.Context, from time.Time) ([]Slot, error)
	Create(ctx context.Context, s Slot) error
	SetAvailable(ctx context.Context, id string, available bool) error
	// TryReserve increments the reserved count in one conditional write that
	// only applies while the slot is available and below capacity.
	TryReserve(ctx context.Context, id string) (bool, error)
	// Release decrements the reserved count if it is above zero.
	Release(ctx context.Context, id string) (bool, error)
	// Recount rewrites reserved counts from the orders that still hold each
	// slot and returns the slots that changed.
	Recount(ctx context.Context) ([]Correction, error)
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
