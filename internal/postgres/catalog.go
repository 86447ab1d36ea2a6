package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-checkout-engine/internal/apperr"
	"github.com/ariefcatur/go-checkout-engine/internal/catalog"
)

type ProductRepo struct{ db *DB }

func (db *DB) Products() catalog.Repository { return ProductRepo{db} }

const productCols = `id, sku, name, price, stock, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r ProductRepo) Get(ctx context.Context, id string) (catalog.Product, error) {
	p, err := scanProduct(r.db.q(ctx).QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
	if noRows(err) {
		return catalog.Product{}, catalog.ErrProductNotFound(id)
	}
	return p, translate(err, "get product")
}

func (r ProductRepo) GetMany(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	out := make(map[string]catalog.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+productCols+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, translate(err, "get products")
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, translate(err, "scan product")
		}
		out[p.ID] = p
	}
	return out, translate(rows.Err(), "get products")
}

func (r ProductRepo) ListActive(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+productCols+` FROM products WHERE is_active ORDER BY sku`)
	if err != nil {
		return nil, translate(err, "list products")
	}
	defer rows.Close()
	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, translate(err, "scan product")
		}
		out = append(out, p)
	}
	return out, translate(rows.Err(), "list products")
}

func (r ProductRepo) Create(ctx context.Context, p catalog.Product) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO products (`+productCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.SKU, p.Name, p.Price, p.Stock, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err, "products_sku_key") {
		return apperr.Validation("sku", "sku already exists")
	}
	return translate(err, "insert product")
}

// exec runs a single-row update and reports NotFound when nothing matched.
func (r ProductRepo) exec(ctx context.Context, id, op, sql string, args ...any) error {
	ct, err := r.db.q(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return translate(err, op)
	}
	if ct.RowsAffected() != 1 {
		return catalog.ErrProductNotFound(id)
	}
	return nil
}

func (r ProductRepo) UpdatePrice(ctx context.Context, id string, price int64) error {
	return r.exec(ctx, id, "update price",
		`UPDATE products SET price = $2, updated_at = now() WHERE id = $1`, id, price)
}

func (r ProductRepo) SetActive(ctx context.Context, id string, active bool) error {
	return r.exec(ctx, id, "set product active",
		`UPDATE products SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
}

func (r ProductRepo) DecrementStock(ctx context.Context, id string, qty int) (bool, error) {
	ct, err := r.db.q(ctx).Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return false, translate(err, "decrement stock")
	}
	return ct.RowsAffected() == 1, nil
}

func (r ProductRepo) RestoreStock(ctx context.Context, id string, qty int) error {
	return r.exec(ctx, id, "restore stock",
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, id, qty)
}
