package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/delivery"
)

type SlotRepo struct{ db *DB }

func (db *DB) Slots() delivery.Repository { return SlotRepo{db} }

const slotCols = `id, slot_date, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
	max_capacity, reserved_count, is_available, created_at`

func scanSlot(row pgx.Row) (delivery.Slot, error) {
	var s delivery.Slot
	err := row.Scan(&s.ID, &s.Date, &s.StartTime, &s.EndTime, &s.MaxCapacity, &s.ReservedCount, &s.IsAvailable, &s.CreatedAt)
	s.Date = delivery.Day(s.Date)
	return s, err
}

func (r SlotRepo) Get(ctx context.Context, id string) (delivery.Slot, error) {
	s, err := scanSlot(r.db.q(ctx).QueryRow(ctx, `SELECT `+slotCols+` FROM delivery_slots WHERE id = $1`, id))
	if noRows(err) {
		return delivery.Slot{}, apperr.NotFound("delivery slot", id)
	}
	return s, translate(err, "get slot")
}

func (r SlotRepo) ListAvailable(ctx context.Context, from time.Time) ([]delivery.Slot, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT `+slotCols+` FROM delivery_slots
		WHERE is_available AND reserved_count < max_capacity AND slot_date >= $1::date
		ORDER BY slot_date, start_time`, from.Format(delivery.DateLayout))
	if err != nil {
		return nil, translate(err, "list slots")
	}
	defer rows.Close()
	var out []delivery.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, translate(err, "scan slot")
		}
		out = append(out, s)
	}
	return out, translate(rows.Err(), "list slots")
}

func (r SlotRepo) Create(ctx context.Context, s delivery.Slot) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO delivery_slots (id, slot_date, start_time, end_time, max_capacity, reserved_count, is_available, created_at)
		VALUES ($1, $2::date, $3::time, $4::time, $5, $6, $7, $8)`,
		s.ID, s.Date.Format(delivery.DateLayout), s.StartTime, s.EndTime, s.MaxCapacity, s.ReservedCount, s.IsAvailable, s.CreatedAt)
	return translate(err, "insert slot")
}

func (r SlotRepo) SetAvailable(ctx context.Context, id string, available bool) error {
	ct, err := r.db.q(ctx).Exec(ctx, `UPDATE delivery_slots SET is_available = $2 WHERE id = $1`, id, available)
	if err != nil {
		return translate(err, "set slot availability")
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("delivery slot", id)
	}
	return nil
}

func (r SlotRepo) TryReserve(ctx context.Context, id string) (bool, error) {
	ct, err := r.db.q(ctx).Exec(ctx, `
		UPDATE delivery_slots SET reserved_count = reserved_count + 1
		WHERE id = $1 AND is_available AND reserved_count < max_capacity`, id)
	if err != nil {
		return false, translate(err, "reserve slot")
	}
	return ct.RowsAffected() == 1, nil
}

func (r SlotRepo) Release(ctx context.Context, id string) (bool, error) {
	ct, err := r.db.q(ctx).Exec(ctx, `
		UPDATE delivery_slots SET reserved_count = reserved_count - 1
		WHERE id = $1 AND reserved_count > 0`, id)
	if err != nil {
		return false, translate(err, "release slot")
	}
	return ct.RowsAffected() == 1, nil
}

// Recount locks every slot first so that checkouts holding a slot row
// commit before the orders are counted.
func (r SlotRepo) Recount(ctx context.Context) ([]delivery.Correction, error) {
	var out []delivery.Correction
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)
		if _, err := q.Exec(ctx, `SELECT id FROM delivery_slots ORDER BY id FOR UPDATE`); err != nil {
			return translate(err, "lock slots")
		}
		rows, err := q.Query(ctx, `
			WITH live AS (
				SELECT delivery_slot_id AS slot_id, count(*)::int AS n
				FROM orders
				WHERE delivery_slot_id IS NOT NULL AND status <> 'cancelled'
				GROUP BY delivery_slot_id
			), drift AS (
				SELECT s.id, s.reserved_count AS before,
					LEAST(COALESCE(l.n, 0), s.max_capacity) AS after,
					COALESCE(l.n, 0) AS actual
				FROM delivery_slots s
				LEFT JOIN live l ON l.slot_id = s.id
			)
			UPDATE delivery_slots d SET reserved_count = drift.after
			FROM drift
			WHERE d.id = drift.id AND (drift.before <> drift.after OR drift.actual <> drift.after)
			RETURNING d.id, drift.before, drift.after, drift.actual`)
		if err != nil {
			return translate(err, "recount slots")
		}
		defer rows.Close()
		for rows.Next() {
			var c delivery.Correction
			if err := rows.Scan(&c.SlotID, &c.Before, &c.After, &c.Actual); err != nil {
				return translate(err, "scan correction")
			}
			out = append(out, c)
		}
		return translate(rows.Err(), "recount slots")
	})
	return out, err
}
