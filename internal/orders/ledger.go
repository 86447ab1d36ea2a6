package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/outbox"
	"github.com/ariefcatur/go-checkout-engine/internal/txn"
)

// ActorSystem is recorded for transitions the engine makes by itself.
const ActorSystem = "system"

const maxNoteLen = 2000

// SlotReleaser gives back delivery capacity held by a cancelled order.
type SlotReleaser interface {
	Release(ctx context.Context, slotID string) error
}

// StockRestorer puts cancelled quantities back into the catalog.
type StockRestorer interface {
	RestoreStock(ctx context.Context, productID string, qty int) error
}

// Draft is everything checkout has decided about a new order.
type Draft struct {
	UserID          string
	Lines           []Line
	Subtotal        int64
	ShippingCost    int64
	DiscountAmount  int64
	TotalAmount     int64
	Currency        string
	DeliverySlotID  *string
	CouponID        *string
	CouponCode      *string
	ShippingAddress Address
	Notes           string
	TraceID         string
}

// Ledger is the system of record for orders. Status, payment and tracking
// only change through its methods so the history stays complete.
type Ledger struct {
	Repo    Repository
	Outbox  outbox.Writer
	Tx      txn.Transactor
	Slots   SlotReleaser
	Stock   StockRestorer
	Log     logrus.FieldLogger
	Service string
	Now     func() time.Time
	// NewNumber overrides order number generation.
	NewNumber func() string
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// NewOrderNumber returns a sortable, timestamp-derived order number.
func NewOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}

func (l *Ledger) number() string {
	if l.NewNumber != nil {
		return l.NewNumber()
	}
	return NewOrderNumber()
}

// Create persists a new order in pending/pending together with its first
// history entry and OrderCreated event. It refuses drafts whose amounts do
// not add up.
func (l *Ledger) Create(ctx context.Context, d Draft) (Order, error) {
	if err := checkAmounts(d); err != nil {
		return Order{}, err
	}
	now := l.now()
	o := Order{
		ID:              uuid.NewString(),
		OrderNumber:     l.number(),
		UserID:          d.UserID,
		Lines:           d.Lines,
		Subtotal:        d.Subtotal,
		ShippingCost:    d.ShippingCost,
		DiscountAmount:  d.DiscountAmount,
		TotalAmount:     d.TotalAmount,
		Currency:        d.Currency,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		DeliverySlotID:  d.DeliverySlotID,
		CouponID:        d.CouponID,
		CouponCode:      d.CouponCode,
		ShippingAddress: d.ShippingAddress,
		Notes:           d.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := l.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := l.Repo.Insert(ctx, o); err != nil {
			return err
		}
		if err := l.Repo.AppendEvent(ctx, StatusEvent{
			OrderID: o.ID, Kind: KindStatus, Status: string(StatusPending),
			Actor: d.UserID, Note: "order placed", CreatedAt: now,
		}); err != nil {
			return err
		}
		items := make([]ItemPrice, 0, len(o.Lines))
		for _, ln := range o.Lines {
			items = append(items, ItemPrice{ProductID: ln.ProductID, Qty: ln.Quantity, UnitPrice: ln.UnitPriceAtPurchase})
		}
		return l.emit(ctx, TopicOrderCreated, EventOrderCreated, o.ID, d.TraceID, OrderCreatedPayload{
			OrderID:        o.ID,
			OrderNumber:    o.OrderNumber,
			UserID:         o.UserID,
			Items:          items,
			Subtotal:       o.Subtotal,
			ShippingCost:   o.ShippingCost,
			DiscountAmount: o.DiscountAmount,
			TotalAmount:    o.TotalAmount,
			Currency:       o.Currency,
			DeliverySlotID: o.DeliverySlotID,
			CouponCode:     o.CouponCode,
			Status:         o.Status,
			PaymentStatus:  o.PaymentStatus,
		})
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func checkAmounts(d Draft) error {
	var sum int64
	for _, ln := range d.Lines {
		if ln.Quantity <= 0 || ln.LineTotal != ln.UnitPriceAtPurchase*int64(ln.Quantity) {
			return apperr.InvariantViolation(fmt.Sprintf("line %s: qty %d x %d != %d",
				ln.ProductID, ln.Quantity, ln.UnitPriceAtPurchase, ln.LineTotal))
		}
		sum += ln.LineTotal
	}
	switch {
	case len(d.Lines) == 0:
		return apperr.InvariantViolation("order draft has no lines")
	case sum != d.Subtotal:
		return apperr.InvariantViolation(fmt.Sprintf("subtotal %d != sum of lines %d", d.Subtotal, sum))
	case d.TotalAmount != d.Subtotal+d.ShippingCost-d.DiscountAmount:
		return apperr.InvariantViolation(fmt.Sprintf("total %d != %d + %d - %d",
			d.TotalAmount, d.Subtotal, d.ShippingCost, d.DiscountAmount))
	case d.TotalAmount < 0:
		return apperr.InvariantViolation(fmt.Sprintf("negative total %d", d.TotalAmount))
	}
	return nil
}

// TransitionStatus moves the order along the status graph. Cancelling gives
// back the delivery slot and the reserved stock in the same transaction.
func (l *Ledger) TransitionStatus(ctx context.Context, orderID string, to Status, actor, note string) (Order, error) {
	if strings.TrimSpace(actor) == "" {
		return Order{}, apperr.Validation("actor", "actor is required")
	}
	var out Order
	err := l.Tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := l.Repo.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		from := o.Status
		if !CanTransition(from, to) {
			return apperr.InvalidTransition(string(from), string(to))
		}
		if to == StatusDelivered && o.PaymentStatus == PaymentFailed {
			e := apperr.InvalidTransition(string(from), string(to))
			e.Message = "cannot deliver an order whose payment failed"
			return e
		}

		now := l.now()
		if err := l.Repo.UpdateStatus(ctx, orderID, to, now); err != nil {
			return err
		}
		if err := l.Repo.AppendEvent(ctx, StatusEvent{
			OrderID: orderID, Kind: KindStatus, Status: string(to), Actor: actor, Note: note, CreatedAt: now,
		}); err != nil {
			return err
		}
		if to == StatusCancelled {
			if err := l.compensate(ctx, o); err != nil {
				return err
			}
		}
		o.Status, o.UpdatedAt = to, now
		out = o
		return l.emit(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, orderID, "", OrderStatusChangedPayload{
			OrderID: orderID, From: from, To: to, Actor: actor, Note: note,
		})
	})
	if err != nil {
		return Order{}, err
	}
	l.log().WithFields(logrus.Fields{"order_id": orderID, "status": to, "actor": actor}).Info("order status changed")
	return out, nil
}

func (l *Ledger) compensate(ctx context.Context, o Order) error {
	if o.DeliverySlotID != nil && l.Slots != nil {
		if err := l.Slots.Release(ctx, *o.DeliverySlotID); err != nil {
			return err
		}
	}
	if l.Stock != nil {
		for _, ln := range o.Lines {
			if err := l.Stock.RestoreStock(ctx, ln.ProductID, ln.Quantity); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Ledger) SetPaymentStatus(ctx context.Context, orderID string, to PaymentStatus, actor string) (Order, error) {
	if strings.TrimSpace(actor) == "" {
		return Order{}, apperr.Validation("actor", "actor is required")
	}
	var out Order
	err := l.Tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := l.Repo.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		from := o.PaymentStatus
		if !CanTransitionPayment(from, to) {
			e := apperr.InvalidTransition(string(from), string(to))
			e.Field = "payment_status"
			return e
		}
		if to == PaymentFailed && o.Status == StatusDelivered {
			e := apperr.InvalidTransition(string(from), string(to))
			e.Field, e.Message = "payment_status", "cannot fail payment of a delivered order"
			return e
		}
		now := l.now()
		if err := l.Repo.UpdatePaymentStatus(ctx, orderID, to, now); err != nil {
			return err
		}
		if err := l.Repo.AppendEvent(ctx, StatusEvent{
			OrderID: orderID, Kind: KindPayment, Status: string(to), Actor: actor, CreatedAt: now,
		}); err != nil {
			return err
		}
		o.PaymentStatus, o.UpdatedAt = to, now
		out = o
		return l.emit(ctx, TopicOrderPaymentChanged, EventOrderPaymentChanged, orderID, "", OrderPaymentChangedPayload{
			OrderID: orderID, From: from, To: to, Actor: actor,
		})
	})
	if err != nil {
		return Order{}, err
	}
	return out, nil
}

func (l *Ledger) SetTracking(ctx context.Context, orderID, tracking, actor string) (Order, error) {
	tracking = strings.TrimSpace(tracking)
	if tracking == "" {
		return Order{}, apperr.Validation("tracking_number", "tracking number is required")
	}
	var out Order
	err := l.Tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := l.Repo.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusCancelled {
			e := apperr.InvalidTransition(string(o.Status), string(o.Status))
			e.Field, e.Message = "tracking_number", "cannot track a cancelled order"
			return e
		}
		now := l.now()
		if err := l.Repo.UpdateTracking(ctx, orderID, tracking, now); err != nil {
			return err
		}
		o.TrackingNumber, o.UpdatedAt = tracking, now
		out = o
		return l.emit(ctx, TopicOrderTrackingUpdated, EventOrderTrackingUpdated, orderID, "", OrderTrackingUpdatedPayload{
			OrderID: orderID, TrackingNumber: tracking, Actor: actor,
		})
	})
	if err != nil {
		return Order{}, err
	}
	return out, nil
}

// AddNote appends an operator note to the order history and returns the
// history. The order itself is unchanged and no event is published.
func (l *Ledger) AddNote(ctx context.Context, orderID, note, actor string) ([]StatusEvent, error) {
	note = strings.TrimSpace(note)
	switch {
	case note == "":
		return nil, apperr.Validation("note", "note is required")
	case len(note) > maxNoteLen:
		return nil, apperr.Validation("note", "note is too long")
	}
	var history []StatusEvent
	err := l.Tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := l.Repo.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		if err := l.Repo.AppendEvent(ctx, StatusEvent{
			OrderID: orderID, Kind: KindNote, Status: string(o.Status), Actor: actor, Note: note, CreatedAt: l.now(),
		}); err != nil {
			return err
		}
		history, err = l.Repo.Events(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (l *Ledger) History(ctx context.Context, orderID string) ([]StatusEvent, error) {
	if _, err := l.Repo.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return l.Repo.Events(ctx, orderID)
}

func (l *Ledger) Get(ctx context.Context, orderID string) (Order, error) {
	return l.Repo.Get(ctx, orderID)
}

func (l *Ledger) List(ctx context.Context, f Filter) ([]Order, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return l.Repo.List(ctx, f)
}

func (l *Ledger) emit(ctx context.Context, topic, eventType, orderID, traceID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s", eventType)
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    l.now(),
		Producer:      l.Service,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       body,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	return l.Outbox.Add(ctx, outbox.Record{
		EventID:   env.EventID,
		Topic:     topic,
		Key:       orderID,
		EventType: eventType,
		Payload:   value,
		CreatedAt: env.OccurredAt,
	})
}

func (l *Ledger) log() logrus.FieldLogger {
	if l.Log != nil {
		return l.Log
	}
	return logrus.StandardLogger()
}
