// Package apperr holds the typed failures the checkout engine hands back to
// callers. Every failure carries a stable code so transports can map it
// without string matching.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_FAILED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeEmptyCart           Code = "EMPTY_CART"
	CodeCartChanged         Code = "CART_CHANGED"
	CodeProductUnavailable  Code = "PRODUCT_UNAVAILABLE"
	CodeCapacityExceeded    Code = "CAPACITY_EXCEEDED"
	CodeSlotUnavailable     Code = "SLOT_UNAVAILABLE"
	CodeCouponInvalid       Code = "COUPON_INVALID"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeInvariantViolation  Code = "INTERNAL_INVARIANT_VIOLATION"
)

// Error is a user-presentable failure. Message is safe to show to end users;
// Detail is for operators only.
type Error struct {
	Code     Code
	Message  string
	Field    string
	Resource string
	Reason   string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Reason != "" {
		msg += "(" + e.Reason + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += " [" + e.Detail + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code, and on reason when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Reason == "" || t.Reason == e.Reason)
}

// Sentinels for errors.Is.
var (
	ErrValidation          = &Error{Code: CodeValidation}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrEmptyCart           = &Error{Code: CodeEmptyCart}
	ErrCartChanged         = &Error{Code: CodeCartChanged}
	ErrProductUnavailable  = &Error{Code: CodeProductUnavailable}
	ErrCapacityExceeded    = &Error{Code: CodeCapacityExceeded}
	ErrSlotUnavailable     = &Error{Code: CodeSlotUnavailable}
	ErrCouponInvalid       = &Error{Code: CodeCouponInvalid}
	ErrInvalidTransition   = &Error{Code: CodeInvalidTransition}
	ErrConcurrencyConflict = &Error{Code: CodeConcurrencyConflict}
	ErrInvariantViolation  = &Error{Code: CodeInvariantViolation}
)

func Validation(field, msg string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: msg}
}

func NotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Resource: id, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

func EmptyCart() *Error {
	return &Error{Code: CodeEmptyCart, Message: "cart is empty"}
}

func CartChanged() *Error {
	return &Error{Code: CodeCartChanged, Field: "cart_snapshot_ref", Message: "cart changed since it was last viewed"}
}

func ProductUnavailable(productID, why string) *Error {
	return &Error{
		Code:     CodeProductUnavailable,
		Resource: productID,
		Field:    "items",
		Message:  fmt.Sprintf("product %s is unavailable: %s", productID, why),
	}
}

func CapacityExceeded(slotID string) *Error {
	return &Error{
		Code:     CodeCapacityExceeded,
		Resource: slotID,
		Field:    "delivery_slot_id",
		Message:  "this delivery slot just filled up",
	}
}

func SlotUnavailable(slotID, why string) *Error {
	return &Error{
		Code:     CodeSlotUnavailable,
		Resource: slotID,
		Field:    "delivery_slot_id",
		Message:  fmt.Sprintf("delivery slot %s is unavailable: %s", slotID, why),
	}
}

func CouponInvalid(code, reason, msg string) *Error {
	return &Error{Code: CodeCouponInvalid, Resource: code, Reason: reason, Field: "coupon_code", Message: msg}
}

func InvalidTransition(from, to string) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Field:   "status",
		Message: fmt.Sprintf("cannot move order from %s to %s", from, to),
	}
}

func ConcurrencyConflict(cause error) *Error {
	return &Error{Code: CodeConcurrencyConflict, Message: "concurrent update, please retry", Err: cause}
}

// InvariantViolation keeps the diagnosis in Detail and shows users a generic message.
func InvariantViolation(detail string) *Error {
	return &Error{Code: CodeInvariantViolation, Message: "internal error", Detail: detail}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or "" for untyped failures.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
