package checkout

import (
	"context"
	"time"
)

// IdempotencyRepository records which order a (user, key) pair produced. The
// row is written in the checkout transaction, so a key is only ever bound to
// a committed order.
type IdempotencyRepository interface {
	// Claim inserts the key. When the key already exists it reports
	// claimed=false and the order it was completed with, if any.
	Claim(ctx context.Context, userID, key string, at time.Time) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, userID, key, orderID string) error
}

// IdempotencyCache is a best-effort fast path in front of the repository.
// Misses and errors fall through to the transactional check.
type IdempotencyCache interface {
	Lookup(ctx context.Context, userID, key string) (orderID string, ok bool, err error)
	Remember(ctx context.Context, userID, key, orderID string) error
}
