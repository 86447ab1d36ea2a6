package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
)

type Product struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Stock     int       `json:"stock"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository is the Catalog Store. DecrementStock and RestoreStock are the
// only writes the checkout path makes.
type Repository interface {
	Get(ctx context.Context, id string) (Product, error)
	GetMany(ctx context.Context, ids []string) (map[string]Product, error)
	ListActive(ctx context.Context) ([]Product, error)
	Create(ctx context.Context, p Product) error
	UpdatePrice(ctx context.Context, id string, price int64) error
	SetActive(ctx context.Context, id string, active bool) error
	// DecrementStock lowers stock by qty only when at least qty is left.
	// It reports false when the stock was too low.
	DecrementStock(ctx context.Context, id string, qty int) (bool, error)
	RestoreStock(ctx context.Context, id string, qty int) error
}

func ErrProductNotFound(id string) *apperr.Error { return apperr.NotFound("product", id) }

// Validate checks the fields an operator supplies when creating a product.
func (p Product) Validate() error {
	switch {
	case strings.TrimSpace(p.SKU) == "":
		return apperr.Validation("sku", "sku is required")
	case strings.TrimSpace(p.Name) == "":
		return apperr.Validation("name", "name is required")
	case p.Price < 0:
		return apperr.Validation("price", "price must not be negative")
	case p.Stock < 0:
		return apperr.Validation("stock", "stock must not be negative")
	}
	return nil
}
