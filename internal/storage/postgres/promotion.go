package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcourt/internal/domain/calendar"
	"github.com/xenking/foodcourt/internal/domain/promotion"
)

const (
	promotionColumns = `id, name, COALESCE(product_id, ''), COALESCE(combo_id, ''),
		discount_type, discount_value, start_date, end_date, is_active, priority,
		max_quantity, used_quantity, daily_max_uses, daily_used_count, last_used_date,
		max_quantity_per_customer`

	listActivePromotionsSQL = `SELECT ` + promotionColumns + `
		FROM price_promotions
		WHERE is_active AND start_date <= $1 AND end_date >= $1
		ORDER BY priority DESC, id`

	getPromotionSQL = `SELECT ` + promotionColumns + ` FROM price_promotions WHERE id = $1`

	// Rollover: the stored daily counter belongs to an earlier day (or was
	// never set), so it restarts at qty.
	consumeRolloverSQL = `UPDATE price_promotions
		SET used_quantity = used_quantity + $2,
			daily_used_count = $2,
			last_used_date = $3
		WHERE id = $1
			AND (last_used_date IS NULL OR last_used_date < $4)
			AND (max_quantity = 0 OR used_quantity + $2 <= max_quantity)
			AND (daily_max_uses = 0 OR $2 <= daily_max_uses)`

	// Same day: both counters grow, each bounded by its cap.
	consumeSameDaySQL = `UPDATE price_promotions
		SET used_quantity = used_quantity + $2,
			daily_used_count = daily_used_count + $2,
			last_used_date = $3
		WHERE id = $1
			AND last_used_date >= $4
			AND (max_quantity = 0 OR used_quantity + $2 <= max_quantity)
			AND (daily_max_uses = 0 OR daily_used_count + $2 <= daily_max_uses)`
)

var (
	_ promotion.Repository = (*PromotionRepository)(nil)
	_ promotion.Ledger     = (*PromotionRepository)(nil)
)

// PromotionRepository reads promotions and is the consumption ledger.
type PromotionRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPromotionRepository returns a PromotionRepository on pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool, now: time.Now}
}

// ListActive returns promotions whose window contains now, highest
// priority first.
func (r *PromotionRepository) ListActive(ctx context.Context, now time.Time) ([]promotion.Promotion, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listActivePromotionsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}
	promos, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}
	return promos, nil
}

// GetByID returns one promotion.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getPromotionSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting promotion %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("getting promotion %q: %w", id, err)
	}
	return &p, nil
}

// TryConsume reserves qty units. Each attempt is one conditional UPDATE, so
// PostgreSQL row locking linearizes concurrent checkouts and no cap can be
// exceeded. The same-day attempt runs only when the rollover matched no row.
func (r *PromotionRepository) TryConsume(ctx context.Context, id string, qty int) (bool, error) {
	if qty <= 0 {
		return false, nil
	}
	now := r.now()
	dayStart := calendar.StartOfDay(now)
	q := conn(ctx, r.pool)

	tag, err := q.Exec(ctx, consumeRolloverSQL, id, qty, now, dayStart)
	if err != nil {
		return false, fmt.Errorf("consuming promotion %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	tag, err = q.Exec(ctx, consumeSameDaySQL, id, qty, now, dayStart)
	if err != nil {
		return false, fmt.Errorf("consuming promotion %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p            promotion.Promotion
		discountType string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.ProductID, &p.ComboID,
		&discountType, &p.DiscountValue, &p.StartDate, &p.EndDate, &p.IsActive, &p.Priority,
		&p.MaxQuantity, &p.UsedQuantity, &p.DailyMaxUses, &p.DailyUsedCount, &p.LastUsedDate,
		&p.MaxQuantityPerCustomer,
	)
	p.DiscountType = promotion.DiscountType(discountType)
	return p, err
}
