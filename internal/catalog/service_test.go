package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/catalog"
	"github.com/ariefcatur/go-checkout-engine/internal/memstore"
)

func newService() *catalog.Service {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	return &catalog.Service{Repo: memstore.New().Products(), Now: func() time.Time { return now }}
}

func TestCreateTrimsAndAssignsID(t *testing.T) {
	svc := newService()
	p, err := svc.Create(context.Background(), catalog.Product{SKU: "  MILK-1 ", Name: " Milk ", Price: 18000, Stock: 4, IsActive: true})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "MILK-1", p.SKU)
	assert.Equal(t, "Milk", p.Name)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
}

func TestCreateValidation(t *testing.T) {
	cases := map[string]struct {
		p     catalog.Product
		field string
	}{
		"blank sku":      {catalog.Product{Name: "Milk"}, "sku"},
		"blank name":     {catalog.Product{SKU: "M"}, "name"},
		"negative price": {catalog.Product{SKU: "M", Name: "Milk", Price: -1}, "price"},
		"negative stock": {catalog.Product{SKU: "M", Name: "Milk", Stock: -1}, "stock"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newService().Create(context.Background(), tc.p)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.CodeValidation, e.Code)
			assert.Equal(t, tc.field, e.Field)
		})
	}
}

func TestDuplicateSKURejected(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	_, err := svc.Create(ctx, catalog.Product{SKU: "M", Name: "Milk"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, catalog.Product{SKU: "M", Name: "Other milk"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListHidesInactiveProducts(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	a, err := svc.Create(ctx, catalog.Product{SKU: "A", Name: "Apple", Price: 5000, IsActive: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, catalog.Product{SKU: "B", Name: "Bread", Price: 12000, IsActive: true})
	require.NoError(t, err)

	_, err = svc.SetActive(ctx, a.ID, false)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "B", list[0].SKU)
}

func TestChangePrice(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	p, err := svc.Create(ctx, catalog.Product{SKU: "A", Name: "Apple", Price: 5000, IsActive: true})
	require.NoError(t, err)

	_, err = svc.ChangePrice(ctx, p.ID, -10)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err := svc.ChangePrice(ctx, p.ID, 5500)
	require.NoError(t, err)
	assert.Equal(t, int64(5500), got.Price)

	_, err = svc.ChangePrice(ctx, "missing", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
