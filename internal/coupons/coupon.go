package coupons

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
)

type DiscountType string

const (
	Percentage DiscountType = "percentage"
	Fixed      DiscountType = "fixed"
)

// Rejection reasons, reported in the order Check evaluates them.
const (
	ReasonNotFound          = "NOT_FOUND"
	ReasonInactive          = "INACTIVE"
	ReasonExpired           = "EXPIRED"
	ReasonBelowMinimum      = "BELOW_MINIMUM"
	ReasonUsageLimitReached = "USAGE_LIMIT_REACHED"
)

var (
	ErrNotFound          = &apperr.Error{Code: apperr.CodeCouponInvalid, Reason: ReasonNotFound}
	ErrInactive          = &apperr.Error{Code: apperr.CodeCouponInvalid, Reason: ReasonInactive}
	ErrExpired           = &apperr.Error{Code: apperr.CodeCouponInvalid, Reason: ReasonExpired}
	ErrBelowMinimum      = &apperr.Error{Code: apperr.CodeCouponInvalid, Reason: ReasonBelowMinimum}
	ErrUsageLimitReached = &apperr.Error{Code: apperr.CodeCouponInvalid, Reason: ReasonUsageLimitReached}
)

// Coupon amounts are minor currency units. DiscountValue is a percent for
// Percentage coupons and an amount for Fixed ones.
type Coupon struct {
	ID                    string          `json:"id"`
	Code                  string          `json:"code"`
	DiscountType          DiscountType    `json:"discount_type"`
	DiscountValue         decimal.Decimal `json:"discount_value"`
	MinimumOrderAmount    int64           `json:"minimum_order_amount"`
	MaximumDiscountAmount *int64          `json:"maximum_discount_amount,omitempty"`
	UsageLimit            *int            `json:"usage_limit,omitempty"`
	UsedCount             int             `json:"used_count"`
	ExpiresAt             *time.Time      `json:"expires_at,omitempty"`
	IsActive              bool            `json:"is_active"`
	CreatedAt             time.Time       `json:"created_at"`
}

// Redeemable reports whether the coupon could still be used at now,
// regardless of order size.
func (c Coupon) Redeemable(now time.Time) bool {
	return c.IsActive && !c.expired(now) && !c.exhausted()
}

func (c Coupon) expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

func (c Coupon) exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// Check returns the first failing rule for an order of the given subtotal.
func (c Coupon) Check(subtotal int64, now time.Time) error {
	switch {
	case !c.IsActive:
		return apperr.CouponInvalid(c.Code, ReasonInactive, "coupon is not active")
	case c.expired(now):
		return apperr.CouponInvalid(c.Code, ReasonExpired, "coupon has expired")
	case subtotal < c.MinimumOrderAmount:
		return apperr.CouponInvalid(c.Code, ReasonBelowMinimum,
			fmt.Sprintf("order subtotal must be at least %d to use this coupon", c.MinimumOrderAmount))
	case c.exhausted():
		return apperr.CouponInvalid(c.Code, ReasonUsageLimitReached, "coupon usage limit reached")
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

// Discount computes the amount taken off subtotal. It is never negative and
// never larger than subtotal.
func (c Coupon) Discount(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	var d int64
	switch c.DiscountType {
	case Percentage:
		d = decimal.NewFromInt(subtotal).Mul(c.DiscountValue).Div(hundred).Round(0).IntPart()
	case Fixed:
		d = c.DiscountValue.Round(0).IntPart()
	}
	if d > subtotal {
		d = subtotal
	}
	if c.MaximumDiscountAmount != nil && d > *c.MaximumDiscountAmount {
		d = *c.MaximumDiscountAmount
	}
	if d < 0 {
		d = 0
	}
	return d
}

type Repository interface {
	Get(ctx context.Context, id string) (Coupon, error)
	GetByCode(ctx context.Context, code string) (Coupon, error)
	// LockByCode is GetByCode with the row locked until the surrounding
	// transaction ends.
	LockByCode(ctx context.Context, code string) (Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c Coupon) error
	SetActive(ctx context.Context, code string, active bool) error
	// TryRedeem increments the used count in one conditional write that only
	// applies while the coupon is redeemable at now.
	TryRedeem(ctx context.Context, id string, now time.Time) (bool, error)
}
