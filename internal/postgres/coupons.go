package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/coupons"
)

type CouponRepo struct{ db *DB }

func (db *DB) Coupons() coupons.Repository { return CouponRepo{db} }

const couponCols = `id, code, discount_type, discount_value::text, minimum_order_amount,
	maximum_discount_amount, usage_limit, used_count, expires_at, is_active, created_at`

func scanCoupon(row pgx.Row) (coupons.Coupon, error) {
	var (
		c     coupons.Coupon
		value string
	)
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &value, &c.MinimumOrderAmount,
		&c.MaximumDiscountAmount, &c.UsageLimit, &c.UsedCount, &c.ExpiresAt, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return coupons.Coupon{}, err
	}
	if c.DiscountValue, err = decimal.NewFromString(value); err != nil {
		return coupons.Coupon{}, errors.Wrapf(err, "coupon %s discount value", c.Code)
	}
	return c, nil
}

func (r CouponRepo) one(ctx context.Context, op, key, sql string, arg any) (coupons.Coupon, error) {
	c, err := scanCoupon(r.db.q(ctx).QueryRow(ctx, sql, arg))
	if noRows(err) {
		return coupons.Coupon{}, apperr.NotFound("coupon", key)
	}
	return c, translate(err, op)
}

func (r CouponRepo) Get(ctx context.Context, id string) (coupons.Coupon, error) {
	return r.one(ctx, "get coupon", id, `SELECT `+couponCols+` FROM coupons WHERE id = $1`, id)
}

func (r CouponRepo) GetByCode(ctx context.Context, code string) (coupons.Coupon, error) {
	return r.one(ctx, "get coupon", code, `SELECT `+couponCols+` FROM coupons WHERE code = $1`, code)
}

func (r CouponRepo) LockByCode(ctx context.Context, code string) (coupons.Coupon, error) {
	return r.one(ctx, "lock coupon", code, `SELECT `+couponCols+` FROM coupons WHERE code = $1 FOR UPDATE`, code)
}

func (r CouponRepo) List(ctx context.Context) ([]coupons.Coupon, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+couponCols+` FROM coupons ORDER BY code`)
	if err != nil {
		return nil, translate(err, "list coupons")
	}
	defer rows.Close()
	var out []coupons.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, translate(err, "scan coupon")
		}
		out = append(out, c)
	}
	return out, translate(rows.Err(), "list coupons")
}

func (r CouponRepo) Create(ctx context.Context, c coupons.Coupon) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO coupons (id, code, discount_type, discount_value, minimum_order_amount,
			maximum_discount_amount, usage_limit, used_count, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue.String(), c.MinimumOrderAmount,
		c.MaximumDiscountAmount, c.UsageLimit, c.UsedCount, c.ExpiresAt, c.IsActive, c.CreatedAt)
	if isUniqueViolation(err, "coupons_code_key") {
		return apperr.Validation("code", "coupon code already exists")
	}
	return translate(err, "insert coupon")
}

func (r CouponRepo) SetActive(ctx context.Context, code string, active bool) error {
	ct, err := r.db.q(ctx).Exec(ctx, `UPDATE coupons SET is_active = $2 WHERE code = $1`, code, active)
	if err != nil {
		return translate(err, "set coupon active")
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("coupon", code)
	}
	return nil
}

func (r CouponRepo) TryRedeem(ctx context.Context, id string, now time.Time) (bool, error) {
	ct, err := r.db.q(ctx).Exec(ctx, `
		UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1
		  AND is_active
		  AND (expires_at IS NULL OR expires_at > $2)
		  AND (usage_limit IS NULL OR used_count < usage_limit)`, id, now)
	if err != nil {
		return false, translate(err, "redeem coupon")
	}
	return ct.RowsAffected() == 1, nil
}
