package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcourt/internal/domain/auth"
	"github.com/xenking/foodcourt/internal/seed"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, description, price, category,
		image_thumbnail, image_mobile, image_tablet, image_desktop, options, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
			price = EXCLUDED.price, category = EXCLUDED.category,
			image_thumbnail = EXCLUDED.image_thumbnail, image_mobile = EXCLUDED.image_mobile,
			image_tablet = EXCLUDED.image_tablet, image_desktop = EXCLUDED.image_desktop,
			options = EXCLUDED.options, is_active = EXCLUDED.is_active, sort_order = EXCLUDED.sort_order`

	upsertComboSQL = `INSERT INTO combos (id, name, description, price,
		image_thumbnail, image_mobile, image_tablet, image_desktop, items, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
			price = EXCLUDED.price,
			image_thumbnail = EXCLUDED.image_thumbnail, image_mobile = EXCLUDED.image_mobile,
			image_tablet = EXCLUDED.image_tablet, image_desktop = EXCLUDED.image_desktop,
			items = EXCLUDED.items, is_active = EXCLUDED.is_active, sort_order = EXCLUDED.sort_order`

	// Counters are left alone so reseeding never resets consumption.
	upsertPromotionSQL = `INSERT INTO price_promotions (id, name, product_id, combo_id, discount_type,
		discount_value, start_date, end_date, is_active, priority, max_quantity, daily_max_uses,
		max_quantity_per_customer)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value, start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date, is_active = EXCLUDED.is_active, priority = EXCLUDED.priority,
			max_quantity = EXCLUDED.max_quantity, daily_max_uses = EXCLUDED.daily_max_uses,
			max_quantity_per_customer = EXCLUDED.max_quantity_per_customer`

	upsertCustomerSQL = `INSERT INTO customers (id, name, email, phone, gender, birth_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
			phone = EXCLUDED.phone, gender = EXCLUDED.gender, birth_date = EXCLUDED.birth_date`

	upsertCouponSQL = `INSERT INTO coupons (id, code, description, discount_type, value, max_discount,
		min_order_amount, min_items, valid_from, valid_until, max_uses, is_active, conditions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			max_discount = EXCLUDED.max_discount, min_order_amount = EXCLUDED.min_order_amount,
			min_items = EXCLUDED.min_items, valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until, max_uses = EXCLUDED.max_uses,
			is_active = EXCLUDED.is_active, conditions = EXCLUDED.conditions`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
			scopes = EXCLUDED.scopes, is_active = TRUE`
)

// Seed upserts the catalog in one transaction.
func Seed(ctx context.Context, pool *pgxpool.Pool, data *seed.Data) error {
	batch := &pgx.Batch{}

	for i, p := range data.Products {
		options, err := json.Marshal(p.Options)
		if err != nil {
			return fmt.Errorf("marshaling options of product %q: %w", p.ID, err)
		}
		batch.Queue(upsertProductSQL,
			p.ID, p.Name, p.Description, p.Price, p.Category,
			p.Image.Thumbnail, p.Image.Mobile, p.Image.Tablet, p.Image.Desktop,
			options, p.IsActive, i,
		)
	}
	for i, c := range data.Combos {
		items, err := json.Marshal(c.Items)
		if err != nil {
			return fmt.Errorf("marshaling items of combo %q: %w", c.ID, err)
		}
		batch.Queue(upsertComboSQL,
			c.ID, c.Name, c.Description, c.Price,
			c.Image.Thumbnail, c.Image.Mobile, c.Image.Tablet, c.Image.Desktop,
			items, c.IsActive, i,
		)
	}
	for _, p := range data.Promotions {
		batch.Queue(upsertPromotionSQL,
			p.ID, p.Name, p.ProductID, p.ComboID, string(p.DiscountType),
			p.DiscountValue, p.StartDate, p.EndDate, p.IsActive, p.Priority,
			p.MaxQuantity, p.DailyMaxUses, p.MaxQuantityPerCustomer,
		)
	}
	for _, c := range data.Customers {
		batch.Queue(upsertCustomerSQL, c.ID, c.Name, c.Email, c.Phone, c.Gender, c.BirthDate)
	}
	for _, c := range data.Coupons {
		conditions, err := json.Marshal(c.Conditions)
		if err != nil {
			return fmt.Errorf("marshaling conditions of coupon %q: %w", c.ID, err)
		}
		batch.Queue(upsertCouponSQL,
			c.ID, c.Code, c.Description, string(c.DiscountType), c.Value, c.MaxDiscount,
			c.MinOrderAmount, c.MinItems, c.ValidFrom, c.ValidUntil, c.MaxUses, c.IsActive, conditions,
		)
	}

	return NewTransactor(pool).WithinTx(ctx, func(ctx context.Context) error {
		if err := sendBatch(ctx, conn(ctx, pool), batch); err != nil {
			return fmt.Errorf("seeding catalog: %w", err)
		}
		return nil
	})
}

// UpsertAPIKey stores an operator key by its hash.
func UpsertAPIKey(ctx context.Context, pool *pgxpool.Pool, k auth.APIKeyInfo) error {
	if _, err := pool.Exec(ctx, upsertAPIKeySQL, k.ID, k.KeyHash, k.Name, k.Scopes); err != nil {
		return fmt.Errorf("upserting api key %q: %w", k.ID, err)
	}
	return nil
}
