package redisx

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-checkout-engine/internal/orders"
)

// IdempotencyCache maps a user's idempotency key to the order it produced.
// Entries are written only after the checkout committed.
type IdempotencyCache struct{ rdb kv }

func NewIdempotencyCache(rdb *redis.Client) *IdempotencyCache { return &IdempotencyCache{rdb} }

func (c *IdempotencyCache) Lookup(ctx context.Context, userID, key string) (string, bool, error) {
	id, err := c.rdb.Get(ctx, idemKey(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "idempotency lookup")
	}
	return id, true, nil
}

func (c *IdempotencyCache) Remember(ctx context.Context, userID, key, orderID string) error {
	err := c.rdb.Set(ctx, idemKey(userID, key), orderID, TTLIdempotency).Err()
	return errors.Wrap(err, "idempotency remember")
}

// StatusCache holds the projected status of each order.
type StatusCache struct{ rdb kv }

func NewStatusCache(rdb *redis.Client) *StatusCache { return &StatusCache{rdb} }

func (c *StatusCache) Get(ctx context.Context, orderID string) (orders.StatusSnapshot, bool, error) {
	var snap orders.StatusSnapshot
	b, err := c.rdb.Get(ctx, statusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, errors.Wrap(err, "status cache get")
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, false, errors.Wrapf(err, "status cache decode %s", orderID)
	}
	return snap, true, nil
}

func (c *StatusCache) Put(ctx context.Context, snap orders.StatusSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "status cache encode")
	}
	return errors.Wrap(c.rdb.Set(ctx, statusKey(snap.OrderID), b, TTLStatusCache).Err(), "status cache put")
}

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	rdb     kv
	service string
}

func NewDedup(rdb *redis.Client, service string) *Dedup { return &Dedup{rdb: rdb, service: service} }

// Claim reports whether the caller is the first to see eventID.
func (d *Dedup) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupKey(d.service, eventID), 1, TTLDedup).Result()
	return ok, errors.Wrap(err, "dedup claim")
}

// Forget drops a claim so a failed event can be processed again.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return errors.Wrap(d.rdb.Del(ctx, dedupKey(d.service, eventID)).Err(), "dedup forget")
}
