package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/cart"
	"github.com/ariefcatur/go-checkout-engine/internal/catalog"
	"github.com/ariefcatur/go-checkout-engine/internal/coupons"
	"github.com/ariefcatur/go-checkout-engine/internal/delivery"
	"github.com/ariefcatur/go-checkout-engine/internal/orders"
	"github.com/ariefcatur/go-checkout-engine/internal/outbox"
)

// ---- catalog ----

type productRepo struct{ s *Store }

func (r productRepo) Get(ctx context.Context, id string) (p catalog.Product, err error) {
	err = r.s.do(ctx, func(*memTx) error {
		var ok bool
		if p, ok = r.s.products[id]; !ok {
			return catalog.ErrProductNotFound(id)
		}
		return nil
	})
	return p, err
}

func (r productRepo) GetMany(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	out := make(map[string]catalog.Product, len(ids))
	err := r.s.do(ctx, func(*memTx) error {
		for _, id := range ids {
			if p, ok := r.s.products[id]; ok {
				out[id] = p
			}
		}
		return nil
	})
	return out, err
}

func (r productRepo) ListActive(ctx context.Context) ([]catalog.Product, error) {
	var out []catalog.Product
	err := r.s.do(ctx, func(*memTx) error {
		for _, p := range r.s.products {
			if p.IsActive {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, err
}

func (r productRepo) Create(ctx context.Context, p catalog.Product) error {
	return r.s.do(ctx, func(tx *memTx) error {
		for _, existing := range r.s.products {
			if existing.SKU == p.SKU {
				return apperr.Validation("sku", "sku already exists")
			}
		}
		set(tx, r.s.products, p.ID, p)
		return nil
	})
}

func (r productRepo) update(ctx context.Context, id string, f func(*catalog.Product) bool) (bool, error) {
	applied := false
	err := r.s.do(ctx, func(tx *memTx) error {
		p, ok := r.s.products[id]
		if !ok {
			return catalog.ErrProductNotFound(id)
		}
		if applied = f(&p); applied {
			p.UpdatedAt = time.Now().UTC()
			set(tx, r.s.products, id, p)
		}
		return nil
	})
	return applied, err
}

func (r productRepo) UpdatePrice(ctx context.Context, id string, price int64) error {
	_, err := r.update(ctx, id, func(p *catalog.Product) bool { p.Price = price; return true })
	return err
}

func (r productRepo) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.update(ctx, id, func(p *catalog.Product) bool { p.IsActive = active; return true })
	return err
}

func (r productRepo) DecrementStock(ctx context.Context, id string, qty int) (bool, error) {
	return r.update(ctx, id, func(p *catalog.Product) bool {
		if p.Stock < qty {
			return false
		}
		p.Stock -= qty
		return true
	})
}

func (r productRepo) RestoreStock(ctx context.Context, id string, qty int) error {
	_, err := r.update(ctx, id, func(p *catalog.Product) bool { p.Stock += qty; return true })
	return err
}

// ---- cart ----

type cartRepo struct{ s *Store }

func (r cartRepo) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	var out []cart.Line
	err := r.s.do(ctx, func(*memTx) error {
		for k, l := range r.s.carts {
			if k.user == userID {
				out = append(out, l)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, err
}

// LockLines needs no extra work: transactions are already serialized.
func (r cartRepo) LockLines(ctx context.Context, userID string) ([]cart.Line, error) {
	return r.Lines(ctx, userID)
}

func (r cartRepo) Add(ctx context.Context, userID, productID string, qty int) error {
	return r.s.do(ctx, func(tx *memTx) error {
		k := cartKey{userID, productID}
		l, ok := r.s.carts[k]
		if !ok {
			l = cart.Line{UserID: userID, ProductID: productID}
		}
		l.Quantity += qty
		l.UpdatedAt = time.Now().UTC()
		set(tx, r.s.carts, k, l)
		return nil
	})
}

func (r cartRepo) SetQuantity(ctx context.Context, userID, productID string, qty int) (bool, error) {
	found := false
	err := r.s.do(ctx, func(tx *memTx) error {
		k := cartKey{userID, productID}
		l, ok := r.s.carts[k]
		if !ok {
			return nil
		}
		found = true
		l.Quantity = qty
		l.UpdatedAt = time.Now().UTC()
		set(tx, r.s.carts, k, l)
		return nil
	})
	return found, err
}

func (r cartRepo) Remove(ctx context.Context, userID, productID string) (bool, error) {
	found := false
	err := r.s.do(ctx, func(tx *memTx) error {
		found = del(tx, r.s.carts, cartKey{userID, productID})
		return nil
	})
	return found, err
}

func (r cartRepo) Clear(ctx context.Context, userID string) error {
	return r.s.do(ctx, func(tx *memTx) error {
		for k := range r.s.carts {
			if k.user == userID {
				del(tx, r.s.carts, k)
			}
		}
		return nil
	})
}

func (r cartRepo) ClearLines(ctx context.Context, userID string, productIDs []string) error {
	return r.s.do(ctx, func(tx *memTx) error {
		for _, id := range productIDs {
			del(tx, r.s.carts, cartKey{user: userID, product: id})
		}
		return nil
	})
}

// ---- delivery ----

type slotRepo struct{ s *Store }

func (r slotRepo) Get(ctx context.Context, id string) (sl delivery.Slot, err error) {
	err = r.s.do(ctx, func(*memTx) error {
		var ok bool
		if sl, ok = r.s.slots[id]; !ok {
			return apperr.NotFound("delivery slot", id)
		}
		return nil
	})
	return sl, err
}

func (r slotRepo) ListAvailable(ctx context.Context, from time.Time) ([]delivery.Slot, error) {
	var out []delivery.Slot
	err := r.s.do(ctx, func(*memTx) error {
		for _, sl := range r.s.slots {
			if sl.IsAvailable && sl.ReservedCount < sl.MaxCapacity && !sl.Date.Before(from) {
				out = append(out, sl)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, err
}

func (r slotRepo) Create(ctx context.Context, sl delivery.Slot) error {
	return r.s.do(ctx, func(tx *memTx) error {
		set(tx, r.s.slots, sl.ID, sl)
		return nil
	})
}

func (r slotRepo) update(ctx context.Context, id string, f func(*delivery.Slot) bool) (bool, error) {
	applied := false
	err := r.s.do(ctx, func(tx *memTx) error {
		sl, ok := r.s.slots[id]
		if !ok {
			return apperr.NotFound("delivery slot", id)
		}
		if applied = f(&sl); applied {
			set(tx, r.s.slots, id, sl)
		}
		return nil
	})
	return applied, err
}

func (r slotRepo) SetAvailable(ctx context.Context, id string, available bool) error {
	_, err := r.update(ctx, id, func(sl *delivery.Slot) bool { sl.IsAvailable = available; return true })
	return err
}

func (r slotRepo) TryReserve(ctx context.Context, id string) (bool, error) {
	return r.update(ctx, id, func(sl *delivery.Slot) bool {
		if !sl.IsAvailable || sl.ReservedCount >= sl.MaxCapacity {
			return false
		}
		sl.ReservedCount++
		return true
	})
}

func (r slotRepo) Release(ctx context.Context, id string) (bool, error) {
	return r.update(ctx, id, func(sl *delivery.Slot) bool {
		if sl.ReservedCount <= 0 {
			return false
		}
		sl.ReservedCount--
		return true
	})
}

func (r slotRepo) Recount(ctx context.Context) ([]delivery.Correction, error) {
	var out []delivery.Correction
	err := r.s.do(ctx, func(tx *memTx) error {
		live := map[string]int{}
		for _, o := range r.s.orders {
			if o.DeliverySlotID != nil && o.Status != orders.StatusCancelled {
				live[*o.DeliverySlotID]++
			}
		}
		for id, sl := range r.s.slots {
			actual := live[id]
			after := min(actual, sl.MaxCapacity)
			if after == sl.ReservedCount && actual == after {
				continue
			}
			out = append(out, delivery.Correction{SlotID: id, Before: sl.ReservedCount, After: after, Actual: actual})
			sl.ReservedCount = after
			set(tx, r.s.slots, id, sl)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
	return out, err
}

// ---- coupons ----

type couponRepo struct{ s *Store }

func (r couponRepo) find(code string) (coupons.Coupon, bool) {
	for _, c := range r.s.coupons {
		if c.Code == code {
			return c, true
		}
	}
	return coupons.Coupon{}, false
}

func (r couponRepo) Get(ctx context.Context, id string) (c coupons.Coupon, err error) {
	err = r.s.do(ctx, func(*memTx) error {
		var ok bool
		if c, ok = r.s.coupons[id]; !ok {
			return apperr.NotFound("coupon", id)
		}
		return nil
	})
	return c, err
}

func (r couponRepo) GetByCode(ctx context.Context, code string) (c coupons.Coupon, err error) {
	err = r.s.do(ctx, func(*memTx) error {
		var ok bool
		if c, ok = r.find(code); !ok {
			return apperr.NotFound("coupon", code)
		}
		return nil
	})
	return c, err
}

func (r couponRepo) LockByCode(ctx context.Context, code string) (coupons.Coupon, error) {
	return r.GetByCode(ctx, code)
}

func (r couponRepo) List(ctx context.Context) ([]coupons.Coupon, error) {
	var out []coupons.Coupon
	err := r.s.do(ctx, func(*memTx) error {
		for _, c := range r.s.coupons {
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r couponRepo) Create(ctx context.Context, c coupons.Coupon) error {
	return r.s.do(ctx, func(tx *memTx) error {
		if _, taken := r.find(c.Code); taken {
			return apperr.Validation("code", "coupon code already exists")
		}
		set(tx, r.s.coupons, c.ID, c)
		return nil
	})
}

func (r couponRepo) SetActive(ctx context.Context, code string, active bool) error {
	return r.s.do(ctx, func(tx *memTx) error {
		c, ok := r.find(code)
		if !ok {
			return apperr.NotFound("coupon", code)
		}
		c.IsActive = active
		set(tx, r.s.coupons, c.ID, c)
		return nil
	})
}

func (r couponRepo) TryRedeem(ctx context.Context, id string, now time.Time) (bool, error) {
	applied := false
	err := r.s.do(ctx, func(tx *memTx) error {
		c, ok := r.s.coupons[id]
		if !ok {
			return apperr.NotFound("coupon", id)
		}
		if !c.Redeemable(now) {
			return nil
		}
		c.UsedCount++
		set(tx, r.s.coupons, id, c)
		applied = true
		return nil
	})
	return applied, err
}

// ---- orders ----

type orderRepo struct{ s *Store }

func cloneOrder(o orders.Order) orders.Order {
	o.Lines = append([]orders.Line(nil), o.Lines...)
	return o
}

func (r orderRepo) Insert(ctx context.Context, o orders.Order) error {
	return r.s.do(ctx, func(tx *memTx) error {
		if _, taken := r.s.numbers[o.OrderNumber]; taken {
			return apperr.ConcurrencyConflict(nil)
		}
		set(tx, r.s.orders, o.ID, cloneOrder(o))
		set(tx, r.s.numbers, o.OrderNumber, o.ID)
		return nil
	})
}

func (r orderRepo) Get(ctx context.Context, id string) (o orders.Order, err error) {
	err = r.s.do(ctx, func(*memTx) error {
		stored, ok := r.s.orders[id]
		if !ok {
			return orders.ErrOrderNotFound(id)
		}
		o = cloneOrder(stored)
		return nil
	})
	return o, err
}

func (r orderRepo) Lock(ctx context.Context, id string) (orders.Order, error) {
	return r.Get(ctx, id)
}

func (r orderRepo) update(ctx context.Context, id string, at time.Time, f func(*orders.Order)) error {
	return r.s.do(ctx, func(tx *memTx) error {
		o, ok := r.s.orders[id]
		if !ok {
			return orders.ErrOrderNotFound(id)
		}
		o = cloneOrder(o)
		f(&o)
		o.UpdatedAt = at
		set(tx, r.s.orders, id, o)
		return nil
	})
}

func (r orderRepo) UpdateStatus(ctx context.Context, id string, st orders.Status, at time.Time) error {
	return r.update(ctx, id, at, func(o *orders.Order) { o.Status = st })
}

func (r orderRepo) UpdatePaymentStatus(ctx context.Context, id string, ps orders.PaymentStatus, at time.Time) error {
	return r.update(ctx, id, at, func(o *orders.Order) { o.PaymentStatus = ps })
}

func (r orderRepo) UpdateTracking(ctx context.Context, id, tracking string, at time.Time) error {
	return r.update(ctx, id, at, func(o *orders.Order) { o.TrackingNumber = tracking })
}

func (r orderRepo) AppendEvent(ctx context.Context, e orders.StatusEvent) error {
	return r.s.do(ctx, func(tx *memTx) error {
		r.s.eventSeq++
		e.ID = r.s.eventSeq
		n := len(r.s.events)
		r.s.events = append(r.s.events, e)
		tx.onRollback(func() {
			r.s.events = r.s.events[:n]
			r.s.eventSeq--
		})
		return nil
	})
}

func (r orderRepo) Events(ctx context.Context, orderID string) ([]orders.StatusEvent, error) {
	var out []orders.StatusEvent
	err := r.s.do(ctx, func(*memTx) error {
		for _, e := range r.s.events {
			if e.OrderID == orderID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func (r orderRepo) List(ctx context.Context, f orders.Filter) ([]orders.Order, error) {
	var out []orders.Order
	err := r.s.do(ctx, func(*memTx) error {
		for _, o := range r.s.orders {
			if f.Status != nil && o.Status != *f.Status {
				continue
			}
			if f.UserID != "" && o.UserID != f.UserID {
				continue
			}
			out = append(out, cloneOrder(o))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset >= len(out) {
		return nil, err
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, err
}

// ---- outbox ----

type outboxRepo struct{ s *Store }

func (r outboxRepo) Add(ctx context.Context, rec outbox.Record) error {
	return r.s.do(ctx, func(tx *memTx) error {
		r.s.outboxSeq++
		rec.ID = r.s.outboxSeq
		n := len(r.s.outbox)
		r.s.outbox = append(r.s.outbox, rec)
		tx.onRollback(func() {
			r.s.outbox = r.s.outbox[:n]
			r.s.outboxSeq--
		})
		return nil
	})
}

func (r outboxRepo) FetchPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	var out []outbox.Record
	err := r.s.do(ctx, func(*memTx) error {
		for _, rec := range r.s.outbox {
			if rec.SentAt == nil {
				out = append(out, rec)
				if len(out) == limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func (r outboxRepo) MarkSent(ctx context.Context, ids []int64, at time.Time) error {
	return r.s.do(ctx, func(tx *memTx) error {
		want := make(map[int64]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		for i := range r.s.outbox {
			if !want[r.s.outbox[i].ID] || r.s.outbox[i].SentAt != nil {
				continue
			}
			i := i
			sentAt := at
			r.s.outbox[i].SentAt = &sentAt
			tx.onRollback(func() { r.s.outbox[i].SentAt = nil })
		}
		return nil
	})
}

// ---- idempotency ----

type IdempotencyRepo struct{ s *Store }

func (r IdempotencyRepo) Claim(ctx context.Context, userID, key string, _ time.Time) (string, bool, error) {
	var existing string
	claimed := false
	err := r.s.do(ctx, func(tx *memTx) error {
		k := idemKey{userID, key}
		if e, ok := r.s.idem[k]; ok {
			existing = e.orderID
			return nil
		}
		set(tx, r.s.idem, k, idemEntry{})
		claimed = true
		return nil
	})
	return existing, claimed, err
}

func (r IdempotencyRepo) Complete(ctx context.Context, userID, key, orderID string) error {
	return r.s.do(ctx, func(tx *memTx) error {
		set(tx, r.s.idem, idemKey{userID, key}, idemEntry{orderID: orderID})
		return nil
	})
}
