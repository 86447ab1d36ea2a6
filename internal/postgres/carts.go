package postgres

import (
	"context"

	"github.com/ariefcatur/go-checkout-engine/internal/cart"
)

type CartRepo struct{ db *DB }

func (db *DB) Carts() cart.Repository { return CartRepo{db} }

func (r CartRepo) lines(ctx context.Context, userID, suffix string) ([]cart.Line, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT user_id, product_id, quantity, updated_at
		FROM cart_items WHERE user_id = $1
		ORDER BY product_id`+suffix, userID)
	if err != nil {
		return nil, translate(err, "list cart")
	}
	defer rows.Close()
	var out []cart.Line
	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(&l.UserID, &l.ProductID, &l.Quantity, &l.UpdatedAt); err != nil {
			return nil, translate(err, "scan cart line")
		}
		out = append(out, l)
	}
	return out, translate(rows.Err(), "list cart")
}

func (r CartRepo) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	return r.lines(ctx, userID, "")
}

func (r CartRepo) LockLines(ctx context.Context, userID string) ([]cart.Line, error) {
	return r.lines(ctx, userID, " FOR UPDATE")
}

func (r CartRepo) Add(ctx context.Context, userID, productID string, qty int) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()`,
		userID, productID, qty)
	return translate(err, "add cart item")
}

func (r CartRepo) SetQuantity(ctx context.Context, userID, productID string, qty int) (bool, error) {
	ct, err := r.db.q(ctx).Exec(ctx, `
		UPDATE cart_items SET quantity = $3, updated_at = now()
		WHERE user_id = $1 AND product_id = $2`, userID, productID, qty)
	if err != nil {
		return false, translate(err, "set cart quantity")
	}
	return ct.RowsAffected() == 1, nil
}

func (r CartRepo) Remove(ctx context.Context, userID, productID string) (bool, error) {
	ct, err := r.db.q(ctx).Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return false, translate(err, "remove cart item")
	}
	return ct.RowsAffected() == 1, nil
}

func (r CartRepo) Clear(ctx context.Context, userID string) error {
	_, err := r.db.q(ctx).Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return translate(err, "clear cart")
}

func (r CartRepo) ClearLines(ctx context.Context, userID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := r.db.q(ctx).Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)`, userID, productIDs)
	return translate(err, "clear cart lines")
}
