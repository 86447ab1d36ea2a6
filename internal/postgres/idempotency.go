package postgres

import (
	"context"
	"time"
)

type IdempotencyRepo struct{ db *DB }

func (db *DB) Idempotency() IdempotencyRepo { return IdempotencyRepo{db} }

// Claim blocks behind a concurrent checkout holding the same key until it
// commits or rolls back, so a replay sees the finished order.
func (r IdempotencyRepo) Claim(ctx context.Context, userID, key string, at time.Time) (string, bool, error) {
	q := r.db.q(ctx)
	ct, err := q.Exec(ctx, `
		INSERT INTO checkout_idempotency (user_id, idem_key, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, idem_key) DO NOTHING`, userID, key, at)
	if err != nil {
		return "", false, translate(err, "claim idempotency key")
	}
	if ct.RowsAffected() == 1 {
		return "", true, nil
	}
	var orderID *string
	if err := q.QueryRow(ctx, `
		SELECT order_id FROM checkout_idempotency
		WHERE user_id = $1 AND idem_key = $2`, userID, key).Scan(&orderID); err != nil {
		return "", false, translate(err, "read idempotency key")
	}
	if orderID == nil {
		return "", false, nil
	}
	return *orderID, false, nil
}

func (r IdempotencyRepo) Complete(ctx context.Context, userID, key, orderID string) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		UPDATE checkout_idempotency SET order_id = $3
		WHERE user_id = $1 AND idem_key = $2`, userID, key, orderID)
	return translate(err, "complete idempotency key")
}
