package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShippingPolicyCost(t *testing.T) {
	p := ShippingPolicy{FreeThreshold: 150000, FlatFee: 5000}
	tests := []struct {
		subtotal int64
		want     int64
	}{
		{0, 5000},
		{20000, 5000},
		{149999, 5000},
		{150000, 0},
		{400000, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Cost(tt.subtotal), "subtotal %d", tt.subtotal)
	}
}
