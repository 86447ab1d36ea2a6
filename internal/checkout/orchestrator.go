// Package checkout turns a cart into an order. Everything a checkout touches
// (idempotency key, cart, coupon, delivery slot, stock, order, outbox) is
// written in one transaction, so a failure at any step leaves no trace.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/cart"
	"github.com/ariefcatur/go-checkout-engine/internal/catalog"
	"github.com/ariefcatur/go-checkout-engine/internal/coupons"
	"github.com/ariefcatur/go-checkout-engine/internal/delivery"
	"github.com/ariefcatur/go-checkout-engine/internal/metrics"
	"github.com/ariefcatur/go-checkout-engine/internal/orders"
	"github.com/ariefcatur/go-checkout-engine/internal/txn"
)

type Request struct {
	UserID          string         `json:"-"`
	DeliverySlotID  *string        `json:"delivery_slot_id,omitempty"`
	CouponCode      string         `json:"coupon_code,omitempty"`
	ShippingAddress orders.Address `json:"shipping_address"`
	IdempotencyKey  string         `json:"idempotency_key"`
	CartSnapshotRef string         `json:"cart_snapshot_ref,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	TraceID         string         `json:"-"`
}

type Result struct {
	Order orders.Order `json:"order"`
	// Replayed is set when the idempotency key already produced this order.
	Replayed bool `json:"idempotent"`
}

type Orchestrator struct {
	Tx          txn.Transactor
	Carts       cart.Repository
	Products    catalog.Repository
	Slots       *delivery.Manager
	Coupons     *coupons.Ledger
	Orders      *orders.Ledger
	Idempotency IdempotencyRepository
	Cache       IdempotencyCache // optional

	Shipping ShippingPolicy
	Currency string

	// MaxAttempts bounds transaction attempts on ConcurrencyConflict.
	MaxAttempts   int
	RetryInterval time.Duration
	Timeout       time.Duration

	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) log() logrus.FieldLogger {
	if o.Log != nil {
		return o.Log
	}
	return logrus.StandardLogger()
}

// Checkout places the order for the user's current cart, or returns a typed
// failure with nothing changed. Repeating a call with the same idempotency
// key returns the order the first call created.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if err := validateRequest(&req); err != nil {
		o.observe(start, 0, Result{}, err)
		return Result{}, err
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	if res, ok := o.cached(ctx, req); ok {
		o.observe(start, 0, res, nil)
		return res, nil
	}

	attempts := 0
	res, err := backoff.Retry(ctx, func() (Result, error) {
		attempts++
		res, err := o.attempt(ctx, req)
		if err != nil && !errors.Is(err, apperr.ErrConcurrencyConflict) {
			return Result{}, backoff.Permanent(err)
		}
		if err != nil {
			o.log().WithError(err).WithField("attempt", attempts).Warn("checkout conflict, retrying")
		}
		return res, err
	}, backoff.WithBackOff(o.backOff()), backoff.WithMaxTries(uint(o.maxAttempts())))

	o.observe(start, attempts, res, err)
	if err != nil {
		return Result{}, err
	}
	if o.Cache != nil && !res.Replayed {
		if cerr := o.Cache.Remember(ctx, req.UserID, req.IdempotencyKey, res.Order.ID); cerr != nil {
			o.log().WithError(cerr).Warn("idempotency cache write failed")
		}
	}
	return res, nil
}

func validateRequest(req *Request) error {
	req.UserID = strings.TrimSpace(req.UserID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.CouponCode = strings.TrimSpace(req.CouponCode)
	if req.DeliverySlotID != nil && strings.TrimSpace(*req.DeliverySlotID) == "" {
		req.DeliverySlotID = nil
	}
	switch {
	case req.UserID == "":
		return apperr.Validation("user_id", "user id is required")
	case req.IdempotencyKey == "":
		return apperr.Validation("idempotency_key", "idempotency key is required")
	case len(req.IdempotencyKey) > 128:
		return apperr.Validation("idempotency_key", "idempotency key is too long")
	}
	return req.ShippingAddress.Validate()
}

func (o *Orchestrator) cached(ctx context.Context, req Request) (Result, bool) {
	if o.Cache == nil {
		return Result{}, false
	}
	id, ok, err := o.Cache.Lookup(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		o.log().WithError(err).Warn("idempotency cache lookup failed")
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	ord, err := o.Orders.Get(ctx, id)
	if err != nil {
		return Result{}, false
	}
	return Result{Order: ord, Replayed: true}, true
}

func (o *Orchestrator) maxAttempts() int {
	if o.MaxAttempts < 1 {
		return 3
	}
	return o.MaxAttempts
}

func (o *Orchestrator) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	if o.RetryInterval > 0 {
		b.InitialInterval = o.RetryInterval
	}
	b.MaxInterval = 10 * b.InitialInterval
	return b
}

// attempt is one transaction. Locks are taken in a fixed order: idempotency
// row, cart rows, coupon row, slot row, product rows by ascending id.
func (o *Orchestrator) attempt(ctx context.Context, req Request) (Result, error) {
	var res Result
	err := o.Tx.WithinTx(ctx, func(ctx context.Context) error {
		now := o.now()

		existing, claimed, err := o.Idempotency.Claim(ctx, req.UserID, req.IdempotencyKey, now)
		if err != nil {
			return err
		}
		if !claimed {
			if existing == "" {
				return apperr.ConcurrencyConflict(errors.New("idempotency key is held by an unfinished checkout"))
			}
			ord, err := o.Orders.Get(ctx, existing)
			if err != nil {
				return err
			}
			res = Result{Order: ord, Replayed: true}
			return nil
		}

		lines, err := o.Carts.LockLines(ctx, req.UserID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperr.EmptyCart()
		}
		if req.CartSnapshotRef != "" && cart.Fingerprint(lines) != req.CartSnapshotRef {
			return apperr.CartChanged()
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

		items, subtotal, err := o.snapshot(ctx, lines)
		if err != nil {
			return err
		}
		if req.DeliverySlotID != nil {
			if err := o.slotOpen(ctx, *req.DeliverySlotID, now); err != nil {
				return err
			}
		}

		shipping := o.Shipping.Cost(subtotal)

		var applied *coupons.Validated
		if req.CouponCode != "" {
			v, err := o.Coupons.Validate(ctx, req.CouponCode, subtotal)
			if err != nil {
				return err
			}
			applied = &v
		}

		if req.DeliverySlotID != nil {
			if _, err := o.Slots.Reserve(ctx, *req.DeliverySlotID); err != nil {
				return err
			}
		}

		var discount int64
		if applied != nil {
			discount = applied.DiscountAmount
		}
		total := subtotal + shipping - discount
		if total < 0 {
			return apperr.InvariantViolation(fmt.Sprintf("negative total: subtotal %d shipping %d discount %d",
				subtotal, shipping, discount))
		}

		for _, it := range items {
			ok, err := o.Products.DecrementStock(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.ProductUnavailable(it.ProductID, "not enough stock")
			}
		}

		draft := orders.Draft{
			UserID:          req.UserID,
			Lines:           items,
			Subtotal:        subtotal,
			ShippingCost:    shipping,
			DiscountAmount:  discount,
			TotalAmount:     total,
			Currency:        o.Currency,
			DeliverySlotID:  req.DeliverySlotID,
			ShippingAddress: req.ShippingAddress,
			Notes:           strings.TrimSpace(req.Notes),
			TraceID:         req.TraceID,
		}
		if applied != nil {
			id, code := applied.Coupon.ID, applied.Coupon.Code
			draft.CouponID, draft.CouponCode = &id, &code
		}
		ord, err := o.Orders.Create(ctx, draft)
		if err != nil {
			return err
		}

		if applied != nil {
			if err := o.Coupons.Redeem(ctx, applied.Coupon); err != nil {
				return err
			}
		}
		if err := o.Idempotency.Complete(ctx, req.UserID, req.IdempotencyKey, ord.ID); err != nil {
			return err
		}
		ordered := make([]string, len(lines))
		for i, l := range lines {
			ordered[i] = l.ProductID
		}
		if err := o.Carts.ClearLines(ctx, req.UserID, ordered); err != nil {
			return err
		}
		res = Result{Order: ord}
		return nil
	})
	return res, err
}

// snapshot prices every line at the current catalog price.
func (o *Orchestrator) snapshot(ctx context.Context, lines []cart.Line) ([]orders.Line, int64, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := o.Products.GetMany(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	items := make([]orders.Line, 0, len(lines))
	var subtotal int64
	for _, l := range lines {
		p, ok := products[l.ProductID]
		switch {
		case !ok:
			return nil, 0, apperr.ProductUnavailable(l.ProductID, "product no longer exists")
		case !p.IsActive:
			return nil, 0, apperr.ProductUnavailable(l.ProductID, "product is no longer sold")
		case p.Stock < l.Quantity:
			return nil, 0, apperr.ProductUnavailable(l.ProductID, fmt.Sprintf("only %d left in stock", p.Stock))
		}
		lineTotal := p.Price * int64(l.Quantity)
		items = append(items, orders.Line{
			ProductID:           p.ID,
			SKU:                 p.SKU,
			ProductName:         p.Name,
			Quantity:            l.Quantity,
			UnitPriceAtPurchase: p.Price,
			LineTotal:           lineTotal,
		})
		subtotal += lineTotal
	}
	return items, subtotal, nil
}

// slotOpen checks the slot is one a customer could pick today. A slot that
// is full by now is reported as CapacityExceeded, not as unavailable.
func (o *Orchestrator) slotOpen(ctx context.Context, slotID string, now time.Time) error {
	s, err := o.Slots.Get(ctx, slotID)
	if err != nil {
		return err
	}
	switch {
	case !s.IsAvailable:
		return apperr.SlotUnavailable(slotID, "slot is closed")
	case s.Date.Before(delivery.Day(now)):
		return apperr.SlotUnavailable(slotID, "slot date has passed")
	case s.Remaining() <= 0:
		return apperr.CapacityExceeded(slotID)
	}
	return nil
}

func (o *Orchestrator) observe(start time.Time, attempts int, res Result, err error) {
	result := "created"
	switch {
	case err != nil:
		result = string(apperr.CodeOf(err))
		if result == "" {
			result = "error"
		}
	case res.Replayed:
		result = "replayed"
	}

	entry := o.log().WithFields(logrus.Fields{
		"result":   result,
		"attempts": attempts,
		"took_ms":  time.Since(start).Milliseconds(),
	})
	switch {
	case err == nil:
		entry.WithFields(logrus.Fields{"order_id": res.Order.ID, "order_number": res.Order.OrderNumber}).Info("checkout done")
	case errors.Is(err, apperr.ErrInvariantViolation):
		e, _ := apperr.As(err)
		entry.WithField("detail", e.Detail).Error("checkout invariant violated")
	case apperr.CodeOf(err) == "":
		entry.WithError(err).Error("checkout failed")
	default:
		entry.WithError(err).Info("checkout rejected")
	}

	if o.Metrics != nil {
		o.Metrics.Checkouts.WithLabelValues(result).Inc()
		o.Metrics.CheckoutLatency.Observe(time.Since(start).Seconds())
		if attempts > 0 {
			o.Metrics.CheckoutAttempts.Observe(float64(attempts))
		}
	}
}
