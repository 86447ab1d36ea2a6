package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventOrderPaymentChanged  = "OrderPaymentStatusChanged"
	EventOrderTrackingUpdated = "OrderTrackingUpdated"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice int64  `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID        string        `json:"order_id"`
	OrderNumber    string        `json:"order_number"`
	UserID         string        `json:"user_id"`
	Items          []ItemPrice   `json:"items"`
	Subtotal       int64         `json:"subtotal"`
	ShippingCost   int64         `json:"shipping_cost"`
	DiscountAmount int64         `json:"discount_amount"`
	TotalAmount    int64         `json:"total_amount"`
	Currency       string        `json:"currency"`
	DeliverySlotID *string       `json:"delivery_slot_id,omitempty"`
	CouponCode     *string       `json:"coupon_code,omitempty"`
	Status         Status        `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Actor   string `json:"actor"`
	Note    string `json:"note,omitempty"`
}

type OrderPaymentChangedPayload struct {
	OrderID string        `json:"order_id"`
	From    PaymentStatus `json:"from"`
	To      PaymentStatus `json:"to"`
	Actor   string        `json:"actor"`
}

type OrderTrackingUpdatedPayload struct {
	OrderID        string `json:"order_id"`
	TrackingNumber string `json:"tracking_number"`
	Actor          string `json:"actor"`
}

// StatusSnapshot is the cached view of an order's state kept by the
// projector.
type StatusSnapshot struct {
	OrderID        string        `json:"order_id"`
	UserID         string        `json:"user_id,omitempty"`
	Status         Status        `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	TrackingNumber string        `json:"tracking_number,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Snapshot is the projection of o as of its last update.
func (o Order) Snapshot() StatusSnapshot {
	return StatusSnapshot{
		OrderID:        o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		TrackingNumber: o.TrackingNumber,
		UpdatedAt:      o.UpdatedAt,
	}
}
