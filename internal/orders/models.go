package orders

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
)

// Order amounts are minor currency units.
// TotalAmount = Subtotal + ShippingCost - DiscountAmount, and never negative.
type Order struct {
	ID              string        `json:"id"`
	OrderNumber     string        `json:"order_number"`
	UserID          string        `json:"user_id"`
	Lines           []Line        `json:"line_items"`
	Subtotal        int64         `json:"subtotal"`
	ShippingCost    int64         `json:"shipping_cost"`
	DiscountAmount  int64         `json:"discount_amount"`
	TotalAmount     int64         `json:"total_amount"`
	Currency        string        `json:"currency"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	DeliverySlotID  *string       `json:"delivery_slot_id,omitempty"`
	CouponID        *string       `json:"coupon_id,omitempty"`
	CouponCode      *string       `json:"coupon_code,omitempty"`
	ShippingAddress Address       `json:"shipping_address"`
	TrackingNumber  string        `json:"tracking_number,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Line prices are snapshotted when the order is created and never change.
type Line struct {
	ProductID           string `json:"product_id"`
	SKU                 string `json:"sku"`
	ProductName         string `json:"product_name"`
	Quantity            int    `json:"quantity"`
	UnitPriceAtPurchase int64  `json:"unit_price_at_purchase"`
	LineTotal           int64  `json:"line_total"`
}

type Address struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	Street        string `json:"street"`
	City          string `json:"city"`
	Province      string `json:"province,omitempty"`
	PostalCode    string `json:"postal_code"`
	Notes         string `json:"notes,omitempty"`
}

func (a Address) Validate() error {
	required := []struct{ field, value string }{
		{"shipping_address.recipient_name", a.RecipientName},
		{"shipping_address.phone", a.Phone},
		{"shipping_address.street", a.Street},
		{"shipping_address.city", a.City},
		{"shipping_address.postal_code", a.PostalCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return apperr.Validation(r.field, r.field+" is required")
		}
	}
	return nil
}

type EventKind string

const (
	KindStatus  EventKind = "status"
	KindPayment EventKind = "payment"
	KindNote    EventKind = "note"
)

// StatusEvent is one append-only history entry.
type StatusEvent struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	Kind      EventKind `json:"kind"`
	Status    string    `json:"status"`
	Actor     string    `json:"actor"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Filter struct {
	Status *Status
	UserID string
	Limit  int
	Offset int
}

type Repository interface {
	// Insert stores the order with its lines. A taken order number fails
	// with ConcurrencyConflict.
	Insert(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	// Lock is Get with the order row locked until the surrounding
	// transaction ends.
	Lock(ctx context.Context, id string) (Order, error)
	UpdateStatus(ctx context.Context, id string, s Status, at time.Time) error
	UpdatePaymentStatus(ctx context.Context, id string, ps PaymentStatus, at time.Time) error
	UpdateTracking(ctx context.Context, id, tracking string, at time.Time) error
	AppendEvent(ctx context.Context, e StatusEvent) error
	Events(ctx context.Context, orderID string) ([]StatusEvent, error)
	// List returns newest first.
	List(ctx context.Context, f Filter) ([]Order, error)
}

func ErrOrderNotFound(id string) *apperr.Error { return apperr.NotFound("order", id) }
