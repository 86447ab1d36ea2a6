package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/ariefcatur/go-checkout-engine/internal/orders"
)

type OrderRepo struct{ db *DB }

func (db *DB) Orders() orders.Repository { return OrderRepo{db} }

const orderCols = `id, order_number, user_id, subtotal, shipping_cost, discount_amount, total_amount,
	currency, status, payment_status, delivery_slot_id, coupon_id, coupon_code, shipping_address,
	tracking_number, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o    orders.Order
		addr []byte
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Subtotal, &o.ShippingCost, &o.DiscountAmount, &o.TotalAmount,
		&o.Currency, &o.Status, &o.PaymentStatus, &o.DeliverySlotID, &o.CouponID, &o.CouponCode, &addr,
		&o.TrackingNumber, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return orders.Order{}, err
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return orders.Order{}, errors.Wrapf(err, "order %s address", o.ID)
	}
	return o, nil
}

func (r OrderRepo) Insert(ctx context.Context, o orders.Order) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "encode address")
	}
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)
		if _, err := q.Exec(ctx, `
			INSERT INTO orders (`+orderCols+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb, $15, $16, $17, $18)`,
			o.ID, o.OrderNumber, o.UserID, o.Subtotal, o.ShippingCost, o.DiscountAmount, o.TotalAmount,
			o.Currency, string(o.Status), string(o.PaymentStatus), o.DeliverySlotID, o.CouponID, o.CouponCode, string(addr),
			o.TrackingNumber, o.Notes, o.CreatedAt, o.UpdatedAt); err != nil {
			return translate(err, "insert order")
		}
		batch := &pgx.Batch{}
		for i, ln := range o.Lines {
			batch.Queue(`
				INSERT INTO order_items (order_id, line_no, product_id, sku, product_name, quantity, unit_price_at_purchase, line_total)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				o.ID, i+1, ln.ProductID, ln.SKU, ln.ProductName, ln.Quantity, ln.UnitPriceAtPurchase, ln.LineTotal)
		}
		tx := q.(pgx.Tx)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return translate(err, "insert order items")
		}
		return nil
	})
}

func (r OrderRepo) one(ctx context.Context, id, suffix string) (orders.Order, error) {
	o, err := scanOrder(r.db.q(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`+suffix, id))
	if noRows(err) {
		return orders.Order{}, orders.ErrOrderNotFound(id)
	}
	if err != nil {
		return orders.Order{}, translate(err, "get order")
	}
	lines, err := r.lines(ctx, []string{id})
	if err != nil {
		return orders.Order{}, err
	}
	o.Lines = lines[id]
	return o, nil
}

func (r OrderRepo) Get(ctx context.Context, id string) (orders.Order, error) {
	return r.one(ctx, id, "")
}

func (r OrderRepo) Lock(ctx context.Context, id string) (orders.Order, error) {
	return r.one(ctx, id, " FOR UPDATE")
}

func (r OrderRepo) lines(ctx context.Context, ids []string) (map[string][]orders.Line, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT order_id, product_id, sku, product_name, quantity, unit_price_at_purchase, line_total
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, translate(err, "get order items")
	}
	defer rows.Close()
	out := make(map[string][]orders.Line, len(ids))
	for rows.Next() {
		var (
			orderID string
			ln      orders.Line
		)
		if err := rows.Scan(&orderID, &ln.ProductID, &ln.SKU, &ln.ProductName, &ln.Quantity, &ln.UnitPriceAtPurchase, &ln.LineTotal); err != nil {
			return nil, translate(err, "scan order item")
		}
		out[orderID] = append(out[orderID], ln)
	}
	return out, translate(rows.Err(), "get order items")
}

func (r OrderRepo) update(ctx context.Context, id, op, set string, v any, at time.Time) error {
	ct, err := r.db.q(ctx).Exec(ctx, `UPDATE orders SET `+set+` = $2, updated_at = $3 WHERE id = $1`, id, v, at)
	if err != nil {
		return translate(err, op)
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrOrderNotFound(id)
	}
	return nil
}

func (r OrderRepo) UpdateStatus(ctx context.Context, id string, s orders.Status, at time.Time) error {
	return r.update(ctx, id, "update order status", "status", string(s), at)
}

func (r OrderRepo) UpdatePaymentStatus(ctx context.Context, id string, ps orders.PaymentStatus, at time.Time) error {
	return r.update(ctx, id, "update payment status", "payment_status", string(ps), at)
}

func (r OrderRepo) UpdateTracking(ctx context.Context, id, tracking string, at time.Time) error {
	return r.update(ctx, id, "update tracking", "tracking_number", tracking, at)
}

func (r OrderRepo) AppendEvent(ctx context.Context, e orders.StatusEvent) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO order_status_events (order_id, kind, status, actor, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.OrderID, string(e.Kind), e.Status, e.Actor, e.Note, e.CreatedAt)
	return translate(err, "append order event")
}

func (r OrderRepo) Events(ctx context.Context, orderID string) ([]orders.StatusEvent, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, order_id, kind, status, actor, note, created_at
		FROM order_status_events WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, translate(err, "list order events")
	}
	defer rows.Close()
	var out []orders.StatusEvent
	for rows.Next() {
		var e orders.StatusEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Kind, &e.Status, &e.Actor, &e.Note, &e.CreatedAt); err != nil {
			return nil, translate(err, "scan order event")
		}
		out = append(out, e)
	}
	return out, translate(rows.Err(), "list order events")
}

func (r OrderRepo) List(ctx context.Context, f orders.Filter) ([]orders.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	sql := `SELECT ` + orderCols + ` FROM orders`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	sql += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT NULLIF($%d::int, 0) OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(err, "list orders")
	}
	var (
		out []orders.Order
		ids []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, translate(err, "scan order")
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list orders")
	}
	if len(ids) == 0 {
		return out, nil
	}

	lines, err := r.lines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}
