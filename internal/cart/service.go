package cart

import (
	"context"
	"strings"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/catalog"
)

// Item is a cart line resolved against the current catalog.
type Item struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
	Available bool   `json:"available"`
}

type View struct {
	UserID      string `json:"user_id"`
	Items       []Item `json:"items"`
	Subtotal    int64  `json:"subtotal"`
	SnapshotRef string `json:"cart_snapshot_ref"`
}

type Service struct {
	Repo     Repository
	Products catalog.Repository
}

func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) error {
	if err := requireIDs(userID, productID); err != nil {
		return err
	}
	if qty <= 0 {
		return apperr.Validation("quantity", "quantity must be positive")
	}
	if err := s.requireSellable(ctx, productID); err != nil {
		return err
	}
	return s.Repo.Add(ctx, userID, productID, qty)
}

// SetQuantity overwrites the quantity of an existing line; qty <= 0 removes it.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	if err := requireIDs(userID, productID); err != nil {
		return err
	}
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}
	if err := s.requireSellable(ctx, productID); err != nil {
		return err
	}
	ok, err := s.Repo.SetQuantity(ctx, userID, productID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("cart item", productID)
	}
	return nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) error {
	if err := requireIDs(userID, productID); err != nil {
		return err
	}
	ok, err := s.Repo.Remove(ctx, userID, productID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("cart item", productID)
	}
	return nil
}

func (s *Service) ListItems(ctx context.Context, userID string) (View, error) {
	if strings.TrimSpace(userID) == "" {
		return View{}, apperr.Validation("user_id", "user id is required")
	}
	lines, err := s.Repo.Lines(ctx, userID)
	if err != nil {
		return View{}, err
	}
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.Products.GetMany(ctx, ids)
	if err != nil {
		return View{}, err
	}

	v := View{UserID: userID, Items: make([]Item, 0, len(lines)), SnapshotRef: Fingerprint(lines)}
	for _, l := range lines {
		it := Item{ProductID: l.ProductID, Quantity: l.Quantity}
		if p, ok := products[l.ProductID]; ok {
			it.SKU = p.SKU
			it.Name = p.Name
			it.UnitPrice = p.Price
			it.LineTotal = p.Price * int64(l.Quantity)
			it.Available = p.IsActive
		}
		if it.Available {
			v.Subtotal += it.LineTotal
		}
		v.Items = append(v.Items, it)
	}
	return v, nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation("user_id", "user id is required")
	}
	return s.Repo.Clear(ctx, userID)
}

func (s *Service) requireSellable(ctx context.Context, productID string) error {
	p, err := s.Products.Get(ctx, productID)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return apperr.ProductUnavailable(productID, "product is no longer sold")
	}
	return nil
}

func requireIDs(userID, productID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation("user_id", "user id is required")
	}
	if strings.TrimSpace(productID) == "" {
		return apperr.Validation("product_id", "product id is required")
	}
	return nil
}
