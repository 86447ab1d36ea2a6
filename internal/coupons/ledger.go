package coupons

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/metrics"
)

// Validated is a coupon that passed every rule for a given subtotal.
type Validated struct {
	Coupon         Coupon `json:"coupon"`
	Subtotal       int64  `json:"subtotal"`
	DiscountAmount int64  `json:"discount_amount"`
}

type NewCoupon struct {
	Code                  string          `json:"code"`
	DiscountType          DiscountType    `json:"discount_type"`
	DiscountValue         decimal.Decimal `json:"discount_value"`
	MinimumOrderAmount    int64           `json:"minimum_order_amount"`
	MaximumDiscountAmount *int64          `json:"maximum_discount_amount,omitempty"`
	UsageLimit            *int            `json:"usage_limit,omitempty"`
	ExpiresAt             *time.Time      `json:"expires_at,omitempty"`
	IsActive              *bool           `json:"is_active,omitempty"`
}

type Ledger struct {
	Repo    Repository
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// NormalizeCode is the canonical form codes are stored and looked up in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks code against an order subtotal without consuming it.
// Inside a transaction the coupon row stays locked until commit, so a
// following Redeem in the same transaction cannot lose a race.
func (l *Ledger) Validate(ctx context.Context, code string, subtotal int64) (Validated, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Validated{}, apperr.CouponInvalid(code, ReasonNotFound, "coupon code is empty")
	}
	c, err := l.Repo.LockByCode(ctx, code)
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		return Validated{}, apperr.CouponInvalid(code, ReasonNotFound, "coupon does not exist")
	}
	if err != nil {
		return Validated{}, err
	}
	if err := c.Check(subtotal, l.now()); err != nil {
		return Validated{}, err
	}
	return Validated{Coupon: c, Subtotal: subtotal, DiscountAmount: c.Discount(subtotal)}, nil
}

// Redeem consumes one use. It is only called from the checkout transaction.
func (l *Ledger) Redeem(ctx context.Context, c Coupon) error {
	ok, err := l.Repo.TryRedeem(ctx, c.ID, l.now())
	if err != nil {
		return err
	}
	if !ok {
		e := apperr.CouponInvalid(c.Code, ReasonUsageLimitReached, "coupon usage limit reached")
		e.Detail = "redemption lost a race for the last use"
		return e
	}
	if l.Metrics != nil {
		l.Metrics.CouponRedeemed.Inc()
	}
	return nil
}

func (l *Ledger) Create(ctx context.Context, in NewCoupon) (Coupon, error) {
	c := Coupon{
		ID:                    uuid.NewString(),
		Code:                  NormalizeCode(in.Code),
		DiscountType:          in.DiscountType,
		DiscountValue:         in.DiscountValue,
		MinimumOrderAmount:    in.MinimumOrderAmount,
		MaximumDiscountAmount: in.MaximumDiscountAmount,
		UsageLimit:            in.UsageLimit,
		ExpiresAt:             in.ExpiresAt,
		IsActive:              in.IsActive == nil || *in.IsActive,
		CreatedAt:             l.now(),
	}
	if err := validateNew(c); err != nil {
		return Coupon{}, err
	}
	if _, err := l.Repo.GetByCode(ctx, c.Code); err == nil {
		return Coupon{}, apperr.Validation("code", "coupon code already exists")
	} else if apperr.CodeOf(err) != apperr.CodeNotFound {
		return Coupon{}, err
	}
	if err := l.Repo.Create(ctx, c); err != nil {
		return Coupon{}, err
	}
	return c, nil
}

func (l *Ledger) SetActive(ctx context.Context, code string, active bool) (Coupon, error) {
	code = NormalizeCode(code)
	if err := l.Repo.SetActive(ctx, code, active); err != nil {
		return Coupon{}, err
	}
	return l.Repo.GetByCode(ctx, code)
}

func (l *Ledger) List(ctx context.Context) ([]Coupon, error) { return l.Repo.List(ctx) }

func (l *Ledger) Get(ctx context.Context, code string) (Coupon, error) {
	return l.Repo.GetByCode(ctx, NormalizeCode(code))
}

func validateNew(c Coupon) error {
	switch {
	case c.Code == "" || strings.ContainsAny(c.Code, " \t\n"):
		return apperr.Validation("code", "code must be a single non-empty word")
	case c.DiscountType != Percentage && c.DiscountType != Fixed:
		return apperr.Validation("discount_type", "discount type must be percentage or fixed")
	case !c.DiscountValue.IsPositive():
		return apperr.Validation("discount_value", "discount value must be positive")
	case c.DiscountType == Percentage && c.DiscountValue.GreaterThan(hundred):
		return apperr.Validation("discount_value", "percentage cannot exceed 100")
	case c.DiscountType == Fixed && !c.DiscountValue.Equal(c.DiscountValue.Truncate(0)):
		return apperr.Validation("discount_value", "fixed discount must be a whole amount")
	case c.MinimumOrderAmount < 0:
		return apperr.Validation("minimum_order_amount", "minimum order amount must not be negative")
	case c.MaximumDiscountAmount != nil && *c.MaximumDiscountAmount <= 0:
		return apperr.Validation("maximum_discount_amount", "maximum discount must be positive")
	case c.UsageLimit != nil && *c.UsageLimit < 1:
		return apperr.Validation("usage_limit", "usage limit must be at least 1")
	}
	return nil
}
