package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcourt/internal/domain/order"
	"github.com/xenking/foodcourt/internal/domain/promotion"
)

const (
	createOrderSQL = `INSERT INTO orders (id, customer_id, status, total_amount, discount_amount,
		shipping_fee, grand_total, coupon_code, voucher_id, distance_km, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, line, product_id, combo_id, name, quantity,
		original_base_price, base_price, price, options, promotion_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))`

	getOrderSQL = `SELECT id, customer_id, status, total_amount, discount_amount, shipping_fee,
		grand_total, coupon_code, voucher_id, distance_km, note, created_at
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT product_id, combo_id, name, quantity, original_base_price,
		base_price, price, options, COALESCE(promotion_id, '')
		FROM order_items WHERE order_id = $1 ORDER BY line`

	updateOrderStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = ANY($2)`

	customerPromotionUsageSQL = `SELECT oi.promotion_id, SUM(oi.quantity)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.customer_id = $1
			AND o.status <> 'canceled'
			AND oi.promotion_id = ANY($2)
		GROUP BY oi.promotion_id`
)

var (
	_ order.Repository       = (*OrderRepository)(nil)
	_ promotion.UsageCounter = (*OrderRepository)(nil)
)

// OrderRepository persists orders with their line items.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository on pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order and its items in one batch.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	batch := &pgx.Batch{}
	batch.Queue(createOrderSQL,
		o.ID, o.CustomerID, string(o.Status), o.TotalAmount, o.DiscountAmount,
		o.ShippingFee, o.GrandTotal, o.CouponCode, o.VoucherID, o.DistanceKm, o.Note, o.CreatedAt,
	)
	for i, it := range o.Items {
		options, err := json.Marshal(it.Options)
		if err != nil {
			return fmt.Errorf("marshaling options of order %q: %w", o.ID, err)
		}
		batch.Queue(createOrderItemSQL,
			o.ID, i, it.ProductID, it.ComboID, it.Name, it.Quantity,
			it.OriginalBasePrice, it.BasePrice, it.Price, options, it.PromotionID,
		)
	}

	if err := sendBatch(ctx, conn(ctx, r.pool), batch); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func sendBatch(ctx context.Context, q querier, b *pgx.Batch) error {
	res := q.SendBatch(ctx, b)
	for range b.Len() {
		if _, err := res.Exec(); err != nil {
			_ = res.Close()
			return err
		}
	}
	return res.Close()
}

// Get returns an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	rows, err = q.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", id, err)
	}
	return &o, nil
}

// UpdateStatus moves the order to `to` only from one of the from statuses.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from []order.Status, to order.Status) (bool, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderStatusSQL, id, fromStr, string(to))
	if err != nil {
		return false, fmt.Errorf("updating status of order %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetUsedQuantity sums promoted units per promotion over the customer's
// non-canceled orders. Promotions without purchases map to 0.
func (r *OrderRepository) GetUsedQuantity(ctx context.Context, customerID string, ids []string) (map[string]int, error) {
	used := make(map[string]int, len(ids))
	for _, id := range ids {
		used[id] = 0
	}
	if len(ids) == 0 {
		return used, nil
	}

	rows, err := conn(ctx, r.pool).Query(ctx, customerPromotionUsageSQL, customerID, ids)
	if err != nil {
		return nil, fmt.Errorf("aggregating promotion usage of %q: %w", customerID, err)
	}
	var (
		id  string
		sum int
	)
	_, err = pgx.ForEachRow(rows, []any{&id, &sum}, func() error {
		used[id] = sum
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aggregating promotion usage of %q: %w", customerID, err)
	}
	return used, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &status, &o.TotalAmount, &o.DiscountAmount, &o.ShippingFee,
		&o.GrandTotal, &o.CouponCode, &o.VoucherID, &o.DistanceKm, &o.Note, &o.CreatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it      order.Item
		options []byte
	)
	if err := row.Scan(
		&it.ProductID, &it.ComboID, &it.Name, &it.Quantity, &it.OriginalBasePrice,
		&it.BasePrice, &it.Price, &options, &it.PromotionID,
	); err != nil {
		return it, err
	}
	if err := json.Unmarshal(options, &it.Options); err != nil {
		return it, fmt.Errorf("decoding item options: %w", err)
	}
	return it, nil
}
