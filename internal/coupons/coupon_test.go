package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
)

func i64(v int64) *int64 { return &v }
func intp(v int) *int { return &v }

func TestDiscount(t *testing.T) {
	tests := []struct {
		name     string
		c        Coupon
		subtotal int64
		want     int64
	}{
		{"percentage", Coupon{DiscountType: Percentage, DiscountValue: decimal.NewFromInt(10)}, 20000, 2000},
		{"percentage rounds half up", Coupon{DiscountType: Percentage, DiscountValue: decimal.RequireFromString("12.5")}, 1004, 126},
		{"percentage capped", Coupon{DiscountType: Percentage, DiscountValue: decimal.NewFromInt(50), MaximumDiscountAmount: i64(15000)}, 100000, 15000},
		{"fixed", Coupon{DiscountType: Fixed, DiscountValue: decimal.NewFromInt(5000)}, 20000, 5000},
		{"fixed never above subtotal", Coupon{DiscountType: Fixed, DiscountValue: decimal.NewFromInt(50000)}, 20000, 20000},
		{"fixed capped lower", Coupon{DiscountType: Fixed, DiscountValue: decimal.NewFromInt(5000), MaximumDiscountAmount: i64(3000)}, 20000, 3000},
		{"zero subtotal", Coupon{DiscountType: Fixed, DiscountValue: decimal.NewFromInt(5000)}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Discount(tt.subtotal))
		})
	}
}

func TestCheckReportsFirstFailingRule(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	base := Coupon{Code: "X", DiscountType: Fixed, DiscountValue: decimal.NewFromInt(1000), IsActive: true, MinimumOrderAmount: 10000}

	tests := []struct {
		name   string
		mutate func(c *Coupon)
		want   error
	}{
		{"inactive wins over expiry", func(c *Coupon) { c.IsActive = false; c.ExpiresAt = &yesterday }, ErrInactive},
		{"expired wins over minimum", func(c *Coupon) { c.ExpiresAt = &yesterday; c.MinimumOrderAmount = 1 << 40 }, ErrExpired},
		{"expires exactly now", func(c *Coupon) { c.ExpiresAt = &now }, ErrExpired},
		{"below minimum wins over usage", func(c *Coupon) { c.MinimumOrderAmount = 1 << 40; c.UsageLimit = intp(1); c.UsedCount = 1 }, ErrBelowMinimum},
		{"usage limit", func(c *Coupon) { c.UsageLimit = intp(2); c.UsedCount = 2 }, ErrUsageLimitReached},
		{"ok", func(c *Coupon) {}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Check(20000, now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

type memRepo struct {
	byCode map[string]Coupon
}

func (r *memRepo) Get(_ context.Context, id string) (Coupon, error) {
	for _, c := range r.byCode {
		if c.ID == id {
			return c, nil
		}
	}
	return Coupon{}, apperr.NotFound("coupon", id)
}

func (r *memRepo) GetByCode(_ context.Context, code string) (Coupon, error) {
	c, ok := r.byCode[code]
	if !ok {
		return Coupon{}, apperr.NotFound("coupon", code)
	}
	return c, nil
}

func (r *memRepo) LockByCode(ctx context.Context, code string) (Coupon, error) {
	return r.GetByCode(ctx, code)
}

func (r *memRepo) List(context.Context) ([]Coupon, error) { return nil, nil }

func (r *memRepo) Create(_ context.Context, c Coupon) error {
	r.byCode[c.Code] = c
	return nil
}

func (r *memRepo) SetActive(_ context.Context, code string, active bool) error {
	c, ok := r.byCode[code]
	if !ok {
		return apperr.NotFound("coupon", code)
	}
	c.IsActive = active
	r.byCode[code] = c
	return nil
}

func (r *memRepo) TryRedeem(_ context.Context, id string, now time.Time) (bool, error) {
	for code, c := range r.byCode {
		if c.ID == id && c.Redeemable(now) {
			c.UsedCount++
			r.byCode[code] = c
			return true, nil
		}
	}
	return false, nil
}

func newLedger() *Ledger {
	return &Ledger{
		Repo: &memRepo{byCode: map[string]Coupon{}},
		Now:  func() time.Time { return time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC) },
	}
}

func TestLedgerValidateAndRedeem(t *testing.T) {
	ctx := context.Background()
	l := newLedger()
	_, err := l.Create(ctx, NewCoupon{Code: " save10 ", DiscountType: Percentage, DiscountValue: decimal.NewFromInt(10), UsageLimit: intp(1)})
	require.NoError(t, err)

	v, err := l.Validate(ctx, "Save10", 20000)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", v.Coupon.Code)
	assert.Equal(t, int64(2000), v.DiscountAmount)

	require.NoError(t, l.Redeem(ctx, v.Coupon))
	err = l.Redeem(ctx, v.Coupon)
	assert.ErrorIs(t, err, ErrUsageLimitReached)

	_, err = l.Validate(ctx, "SAVE10", 20000)
	assert.ErrorIs(t, err, ErrUsageLimitReached)
}

func TestLedgerValidateUnknownCode(t *testing.T) {
	_, err := newLedger().Validate(context.Background(), "NOPE", 1000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerCreateValidation(t *testing.T) {
	ctx := context.Background()
	l := newLedger()
	bad := map[string]NewCoupon{
		"code":                    {Code: "two words", DiscountType: Fixed, DiscountValue: decimal.NewFromInt(1)},
		"discount_type":           {Code: "A", DiscountType: "bogo", DiscountValue: decimal.NewFromInt(1)},
		"discount_value":          {Code: "B", DiscountType: Percentage, DiscountValue: decimal.NewFromInt(101)},
		"usage_limit":             {Code: "C", DiscountType: Fixed, DiscountValue: decimal.NewFromInt(1), UsageLimit: intp(0)},
		"maximum_discount_amount": {Code: "D", DiscountType: Fixed, DiscountValue: decimal.NewFromInt(1), MaximumDiscountAmount: i64(0)},
	}
	for field, in := range bad {
		t.Run(field, func(t *testing.T) {
			_, err := l.Create(ctx, in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			e, _ := apperr.As(err)
			assert.Equal(t, field, e.Field)
		})
	}

	_, err := l.Create(ctx, NewCoupon{Code: "DUP", DiscountType: Fixed, DiscountValue: decimal.NewFromInt(1)})
	require.NoError(t, err)
	_, err = l.Create(ctx, NewCoupon{Code: "dup", DiscountType: Fixed, DiscountValue: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
