package redisx

import (
	"fmt"
	"time"
)

const (
	// idem:checkout:{user_id}:{idempotency_key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// order_status:{order_id} -> JSON orders.StatusSnapshot
	KeyOrderStatus = "order_status:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 72 * time.Hour
	TTLDedup       = 48 * time.Hour
)

func idemKey(userID, key string) string { return fmt.Sprintf(KeyIdemCheckout, userID, key) }
func statusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }
func dedupKey(service, eventID string) string { return fmt.Sprintf(KeyDedup, service, eventID) }
