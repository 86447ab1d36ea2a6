package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-checkout-engine/internal/outbox"
)

type OutboxRepo struct{ db *DB }

func (db *DB) Outbox() outbox.Repository { return OutboxRepo{db} }

func (r OutboxRepo) Add(ctx context.Context, rec outbox.Record) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO outbox (event_id, topic, msg_key, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		rec.EventID, rec.Topic, rec.Key, rec.EventType, string(rec.Payload), rec.CreatedAt)
	return translate(err, "insert outbox record")
}

// FetchPending skips rows another relay already holds.
func (r OutboxRepo) FetchPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, event_id, topic, msg_key, event_type, payload::text, created_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, translate(err, "fetch outbox")
	}
	defer rows.Close()
	var out []outbox.Record
	for rows.Next() {
		var (
			rec     outbox.Record
			payload string
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.EventType, &payload, &rec.CreatedAt); err != nil {
			return nil, translate(err, "scan outbox record")
		}
		rec.Payload = []byte(payload)
		out = append(out, rec)
	}
	return out, translate(rows.Err(), "fetch outbox")
}

func (r OutboxRepo) MarkSent(ctx context.Context, ids []int64, at time.Time) error {
	_, err := r.db.q(ctx).Exec(ctx, `UPDATE outbox SET sent_at = $2 WHERE id = ANY($1) AND sent_at IS NULL`, ids, at)
	return translate(err, "mark outbox sent")
}
