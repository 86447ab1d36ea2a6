package checkout

// ShippingPolicy prices delivery from the order subtotal alone.
type ShippingPolicy struct {
	FreeThreshold int64
	FlatFee       int64
}

// Cost is free from FreeThreshold upwards and FlatFee below it.
func (p ShippingPolicy) Cost(subtotal int64) int64 {
	if subtotal >= p.FreeThreshold {
		return 0
	}
	return p.FlatFee
}
