// Package app builds the checkout engine from configuration. The API and the
// worker share this wiring so both see the same store and services.
package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-checkout-engine/internal/cart"
	"github.com/ariefcatur/go-checkout-engine/internal/catalog"
	"github.com/ariefcatur/go-checkout-engine/internal/checkout"
	"github.com/ariefcatur/go-checkout-engine/internal/config"
	"github.com/ariefcatur/go-checkout-engine/internal/coupons"
	"github.com/ariefcatur/go-checkout-engine/internal/delivery"
	"github.com/ariefcatur/go-checkout-engine/internal/memstore"
	"github.com/ariefcatur/go-checkout-engine/internal/metrics"
	"github.com/ariefcatur/go-checkout-engine/internal/orders"
	"github.com/ariefcatur/go-checkout-engine/internal/outbox"
	"github.com/ariefcatur/go-checkout-engine/internal/postgres"
	"github.com/ariefcatur/go-checkout-engine/internal/redisx"
	"github.com/ariefcatur/go-checkout-engine/internal/txn"
)

// Store is what both storage drivers provide.
type Store interface {
	txn.Transactor
	Products() catalog.Repository
	Carts() cart.Repository
	Slots() delivery.Repository
	Coupons() coupons.Repository
	Orders() orders.Repository
	Outbox() outbox.Repository
}

type App struct {
	Config  config.Config
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics

	Store       Store
	Idempotency checkout.IdempotencyRepository
	Redis       *redis.Client // nil when REDIS_ADDR is empty

	Catalog  *catalog.Service
	Cart     *cart.Service
	Slots    *delivery.Manager
	Coupons  *coupons.Ledger
	Orders   *orders.Ledger
	Checkout *checkout.Orchestrator

	health  []func(context.Context) error
	closers []func()
}

func Open(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	switch cfg.StoreDriver {
	case "memory":
		s := memstore.New()
		a.Store, a.Idempotency = s, s.Idempotency()
		log.Warn("using the in-memory store; data is lost on exit")
	default:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresPool)
		if err != nil {
			return nil, err
		}
		db := postgres.New(pool)
		a.Store, a.Idempotency = db, db.Idempotency()
		a.health = append(a.health, pool.Ping)
		a.closers = append(a.closers, pool.Close)
	}

	if cfg.RedisAddr != "" {
		a.Redis = redisx.New(cfg.RedisAddr)
		rdb := a.Redis
		a.health = append(a.health, func(ctx context.Context) error { return redisx.Ping(ctx, rdb) })
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	a.wire()
	return a, nil
}

func (a *App) wire() {
	cfg, s := a.Config, a.Store
	a.Catalog = &catalog.Service{Repo: s.Products()}
	a.Cart = &cart.Service{Repo: s.Carts(), Products: s.Products()}
	a.Slots = &delivery.Manager{Repo: s.Slots(), Log: a.Log.WithField("component", "delivery"), Metrics: a.Metrics}
	a.Coupons = &coupons.Ledger{Repo: s.Coupons(), Metrics: a.Metrics}
	a.Orders = &orders.Ledger{
		Repo:    s.Orders(),
		Outbox:  s.Outbox(),
		Tx:      s,
		Slots:   a.Slots,
		Stock:   s.Products(),
		Log:     a.Log.WithField("component", "orders"),
		Service: cfg.ServiceName,
	}
	a.Checkout = &checkout.Orchestrator{
		Tx:          s,
		Carts:       s.Carts(),
		Products:    s.Products(),
		Slots:       a.Slots,
		Coupons:     a.Coupons,
		Orders:      a.Orders,
		Idempotency: a.Idempotency,
		Shipping:    checkout.ShippingPolicy{FreeThreshold: cfg.FreeShippingThreshold, FlatFee: cfg.FlatShippingFee},
		Currency:    cfg.Currency,
		MaxAttempts: cfg.CheckoutMaxAttempts,
		Timeout:     cfg.CheckoutTimeout,
		Log:         a.Log.WithField("component", "checkout"),
		Metrics:     a.Metrics,
	}
	if a.Redis != nil {
		a.Checkout.Cache = redisx.NewIdempotencyCache(a.Redis)
	}
}

// Health pings every backing service.
func (a *App) Health(ctx context.Context) error {
	for _, h := range a.health {
		if err := h(ctx); err != nil {
			return errors.Wrap(err, "health")
		}
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
