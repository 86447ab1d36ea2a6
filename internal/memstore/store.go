// Package memstore keeps every repository in process memory. Transactions
// are serialized behind one mutex and undone on failure, which makes it a
// faithful stand-in for Postgres in tests and in local demo mode.
package memstore

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-checkout-engine/internal/cart"
	"github.com/ariefcatur/go-checkout-engine/internal/catalog"
	"github.com/ariefcatur/go-checkout-engine/internal/coupons"
	"github.com/ariefcatur/go-checkout-engine/internal/delivery"
	"github.com/ariefcatur/go-checkout-engine/internal/orders"
	"github.com/ariefcatur/go-checkout-engine/internal/outbox"
)

type cartKey struct{ user, product string }

type idemKey struct{ user, key string }

type idemEntry struct {
	orderID string
}

type Store struct {
	mu sync.Mutex

	products map[string]catalog.Product
	carts    map[cartKey]cart.Line
	slots    map[string]delivery.Slot
	coupons  map[string]coupons.Coupon
	orders   map[string]orders.Order
	numbers  map[string]string
	events   []orders.StatusEvent
	idem     map[idemKey]idemEntry
	outbox   []outbox.Record

	eventSeq  int64
	outboxSeq int64
}

func New() *Store {
	return &Store{
		products: map[string]catalog.Product{},
		carts:    map[cartKey]cart.Line{},
		slots:    map[string]delivery.Slot{},
		coupons:  map[string]coupons.Coupon{},
		orders:   map[string]orders.Order{},
		numbers:  map[string]string{},
		idem:     map[idemKey]idemEntry{},
	}
}

type txKey struct{}

type memTx struct {
	store *Store
	undo  []func()
}

func (tx *memTx) onRollback(f func()) { tx.undo = append(tx.undo, f) }

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (s *Store) current(ctx context.Context) (*memTx, bool) {
	tx, ok := ctx.Value(txKey{}).(*memTx)
	return tx, ok && tx.store == s
}

// WithinTx implements txn.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := s.current(ctx); ok {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	return run(tx, func() error { return fn(context.WithValue(ctx, txKey{}, tx)) })
}

// do runs a single repository operation, joining the caller's transaction
// when there is one.
func (s *Store) do(ctx context.Context, fn func(tx *memTx) error) error {
	if tx, ok := s.current(ctx); ok {
		return fn(tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	return run(tx, func() error { return fn(tx) })
}

func run(tx *memTx, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()
	if err = fn(); err != nil {
		tx.rollback()
	}
	return err
}

func set[K comparable, V any](tx *memTx, m map[K]V, k K, v V) {
	old, had := m[k]
	m[k] = v
	tx.onRollback(func() {
		if had {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func del[K comparable, V any](tx *memTx, m map[K]V, k K) bool {
	old, had := m[k]
	if !had {
		return false
	}
	delete(m, k)
	tx.onRollback(func() { m[k] = old })
	return true
}

func (s *Store) Products() catalog.Repository { return productRepo{s} }
func (s *Store) Carts() cart.Repository { return cartRepo{s} }
func (s *Store) Slots() delivery.Repository { return slotRepo{s} }
func (s *Store) Coupons() coupons.Repository { return couponRepo{s} }
func (s *Store) Orders() orders.Repository { return orderRepo{s} }
func (s *Store) Outbox() outbox.Repository { return outboxRepo{s} }
func (s *Store) Idempotency() IdempotencyRepo { return IdempotencyRepo{s} }
