package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcourt/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, category,
		image_thumbnail, image_mobile, image_tablet, image_desktop, options, is_active`

	listActiveProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE is_active ORDER BY sort_order, id`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	comboColumns = `id, name, description, price,
		image_thumbnail, image_mobile, image_tablet, image_desktop, items, is_active`

	listActiveCombosSQL = `SELECT ` + comboColumns + `
		FROM combos WHERE is_active ORDER BY sort_order, id`

	getCombosByIDsSQL = `SELECT ` + comboColumns + ` FROM combos WHERE id = ANY($1)`
)

var (
	_ product.Repository      = (*ProductRepository)(nil)
	_ product.ComboRepository = (*ProductRepository)(nil)
)

// ProductRepository reads the catalog: products and combos.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository on pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// ListActive returns products on sale in menu order.
func (r *ProductRepository) ListActive(ctx context.Context) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listActiveProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByIDs returns products matching any of ids, active or not.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ListActiveCombos returns combos on sale in menu order.
func (r *ProductRepository) ListActiveCombos(ctx context.Context) ([]product.Combo, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listActiveCombosSQL)
	if err != nil {
		return nil, fmt.Errorf("listing combos: %w", err)
	}
	return pgx.CollectRows(rows, scanCombo)
}

// GetCombosByIDs returns combos matching any of ids, active or not.
func (r *ProductRepository) GetCombosByIDs(ctx context.Context, ids []string) ([]product.Combo, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getCombosByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting combos by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanCombo)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p       product.Product
		options []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Category,
		&p.Image.Thumbnail, &p.Image.Mobile, &p.Image.Tablet, &p.Image.Desktop,
		&options, &p.IsActive,
	); err != nil {
		return p, err
	}
	if err := json.Unmarshal(options, &p.Options); err != nil {
		return p, fmt.Errorf("decoding options of product %q: %w", p.ID, err)
	}
	return p, nil
}

func scanCombo(row pgx.CollectableRow) (product.Combo, error) {
	var (
		c     product.Combo
		items []byte
	)
	if err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.Price,
		&c.Image.Thumbnail, &c.Image.Mobile, &c.Image.Tablet, &c.Image.Desktop,
		&items, &c.IsActive,
	); err != nil {
		return c, err
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return c, fmt.Errorf("decoding items of combo %q: %w", c.ID, err)
	}
	return c, nil
}
