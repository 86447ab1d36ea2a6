package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
)

// Service covers the back-office catalog writes the storefront depends on.
type Service struct {
	Repo Repository
	Now  func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) Create(ctx context.Context, p Product) (Product, error) {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	if err := s.Repo.Create(ctx, p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// ChangePrice affects future checkouts only; orders keep their snapshot.
func (s *Service) ChangePrice(ctx context.Context, id string, price int64) (Product, error) {
	if price < 0 {
		return Product{}, apperr.Validation("price", "price must not be negative")
	}
	if err := s.Repo.UpdatePrice(ctx, id, price); err != nil {
		return Product{}, err
	}
	return s.Repo.Get(ctx, id)
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (Product, error) {
	if err := s.Repo.SetActive(ctx, id, active); err != nil {
		return Product{}, err
	}
	return s.Repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.Repo.ListActive(ctx)
}
