package redisx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-checkout-engine/internal/orders"
)

// mapKV is an in-process stand-in for the redis commands the caches issue.
type mapKV struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newMapKV() *mapKV {
	return &mapKV{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *mapKV) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mapKV) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	m.data[key] = stringify(value)
	m.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (m *mapKV) SetNX(_ context.Context, key string, value interface{}, exp time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewBoolResult(false, m.err)
	}
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = stringify(value)
	m.ttl[key] = exp
	return redis.NewBoolResult(true, nil)
}

func (m *mapKV) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func stringify(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func TestIdempotencyCache(t *testing.T) {
	ctx := context.Background()
	kv := newMapKV()
	c := &IdempotencyCache{rdb: kv}

	_, ok, err := c.Lookup(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Remember(ctx, "u1", "k1", "order-1"))
	assert.Equal(t, TTLIdempotency, kv.ttl["idem:checkout:u1:k1"])

	id, ok, err := c.Lookup(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "order-1", id)

	_, ok, err = c.Lookup(ctx, "u2", "k1")
	require.NoError(t, err)
	assert.False(t, ok, "keys are scoped per user")

	kv.err = errors.New("connection refused")
	_, _, err = c.Lookup(ctx, "u1", "k1")
	assert.ErrorIs(t, err, kv.err)
}

func TestStatusCache(t *testing.T) {
	ctx := context.Background()
	c := &StatusCache{rdb: newMapKV()}

	_, ok, err := c.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := orders.StatusSnapshot{
		OrderID:       "order-1",
		Status:        orders.StatusConfirmed,
		PaymentStatus: orders.PaymentPaid,
		UpdatedAt:     time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.Put(ctx, snap))

	got, ok, err := c.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestDedupClaimAndForget(t *testing.T) {
	ctx := context.Background()
	kv := newMapKV()
	d := &Dedup{rdb: kv, service: "projector"}

	first, err := d.Claim(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Contains(t, kv.data, "dedup:projector:ev-1")

	again, err := d.Claim(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Forget(ctx, "ev-1"))
	retry, err := d.Claim(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, retry)
}
