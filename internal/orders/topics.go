package orders

const (
	TopicOrderCreated         = "order.created"
	TopicOrderStatusChanged   = "order.status.changed"
	TopicOrderPaymentChanged  = "order.payment.changed"
	TopicOrderTrackingUpdated = "order.tracking.updated"
)

// AllTopics is what the projector subscribes to.
var AllTopics = []string{
	TopicOrderCreated,
	TopicOrderStatusChanged,
	TopicOrderPaymentChanged,
	TopicOrderTrackingUpdated,
}

// Partition key = order id so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
