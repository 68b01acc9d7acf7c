package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcourt/internal/domain/coupon"
)

const (
	couponColumns = `id, code, description, discount_type, value, max_discount, min_order_amount,
		min_items, valid_from, valid_until, max_uses, uses, is_active, conditions`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`
	getCouponByIDSQL   = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	incrementCouponUsesSQL = `UPDATE coupons SET uses = uses + 1
		WHERE id = $1 AND (max_uses = 0 OR uses < max_uses)`

	voucherColumns = `id, code, coupon_id, customer_id, status, terms, issued_at,
		expires_at, used_at, COALESCE(order_id, '')`

	getVoucherByCodeSQL = `SELECT ` + voucherColumns + ` FROM vouchers WHERE UPPER(code) = UPPER($1)`
	getVoucherByIDSQL   = `SELECT ` + voucherColumns + ` FROM vouchers WHERE id = $1`

	createVoucherSQL = `INSERT INTO vouchers (id, code, coupon_id, customer_id, status, terms, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	markVoucherUsedSQL = `UPDATE vouchers SET status = 'used', used_at = $3, order_id = $2
		WHERE id = $1 AND status = 'unused'`

	revokeVoucherSQL = `UPDATE vouchers SET status = 'revoked' WHERE id = $1 AND status = 'unused'`

	expireVouchersSQL = `UPDATE vouchers SET status = 'expired'
		WHERE status = 'unused' AND expires_at IS NOT NULL AND expires_at < $1`

	listVoucherHoldersSQL = `SELECT DISTINCT customer_id FROM vouchers WHERE coupon_id = $1`

	hasVoucherSQL = `SELECT EXISTS (SELECT 1 FROM vouchers WHERE coupon_id = $1 AND customer_id = $2)`
)

var (
	_ coupon.Repository        = (*CouponRepository)(nil)
	_ coupon.VoucherRepository = (*CouponRepository)(nil)
)

// CouponRepository stores coupon templates and issued vouchers. Every
// state change is a conditional UPDATE, so concurrent redemptions cannot
// exceed a coupon's uses or spend a voucher twice.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository on pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by code, case-insensitively.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.getCoupon(ctx, getCouponByCodeSQL, code)
}

// GetByID looks up a coupon by id.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.getCoupon(ctx, getCouponByIDSQL, id)
}

func (r *CouponRepository) getCoupon(ctx context.Context, sql, key string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", key, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("getting coupon %q: %w", key, err)
	}
	return &c, nil
}

// IncrementUses adds one use unless the coupon is at its cap.
func (r *CouponRepository) IncrementUses(ctx context.Context, id string) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, incrementCouponUsesSQL, id)
	if err != nil {
		return false, fmt.Errorf("incrementing uses of coupon %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindVoucherByCode looks up a voucher by code, case-insensitively.
func (r *CouponRepository) FindVoucherByCode(ctx context.Context, code string) (*coupon.Voucher, error) {
	return r.getVoucher(ctx, getVoucherByCodeSQL, code)
}

// GetVoucher looks up a voucher by id.
func (r *CouponRepository) GetVoucher(ctx context.Context, id string) (*coupon.Voucher, error) {
	return r.getVoucher(ctx, getVoucherByIDSQL, id)
}

func (r *CouponRepository) getVoucher(ctx context.Context, sql, key string) (*coupon.Voucher, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting voucher %q: %w", key, err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVoucher)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrVoucherNotFound
		}
		return nil, fmt.Errorf("getting voucher %q: %w", key, err)
	}
	return &v, nil
}

// CreateVoucher inserts v with its frozen terms.
func (r *CouponRepository) CreateVoucher(ctx context.Context, v *coupon.Voucher) error {
	terms, err := json.Marshal(v.Terms)
	if err != nil {
		return fmt.Errorf("marshaling terms of voucher %q: %w", v.ID, err)
	}
	var expiresAt *time.Time
	if !v.ExpiresAt.IsZero() {
		expiresAt = &v.ExpiresAt
	}
	_, err = conn(ctx, r.pool).Exec(ctx, createVoucherSQL,
		v.ID, v.Code, v.CouponID, v.CustomerID, string(v.Status), terms, v.IssuedAt, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("creating voucher %q: %w", v.ID, err)
	}
	return nil
}

// MarkUsed moves an unused voucher to used.
func (r *CouponRepository) MarkUsed(ctx context.Context, id, orderID string, at time.Time) (bool, error) {
	return r.transition(ctx, markVoucherUsedSQL, id, orderID, at)
}

// RevokeVoucher moves an unused voucher to revoked.
func (r *CouponRepository) RevokeVoucher(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, revokeVoucherSQL, id)
}

func (r *CouponRepository) transition(ctx context.Context, sql, id string, args ...any) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return false, fmt.Errorf("updating voucher %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireDue expires every unused voucher past its expiry.
func (r *CouponRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, expireVouchersSQL, now)
	if err != nil {
		return 0, fmt.Errorf("expiring vouchers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListHolders returns the customers holding a voucher of couponID.
func (r *CouponRepository) ListHolders(ctx context.Context, couponID string) ([]string, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listVoucherHoldersSQL, couponID)
	if err != nil {
		return nil, fmt.Errorf("listing holders of coupon %q: %w", couponID, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// HasVoucher reports whether customerID holds a voucher of couponID.
func (r *CouponRepository) HasVoucher(ctx context.Context, couponID, customerID string) (bool, error) {
	var ok bool
	if err := conn(ctx, r.pool).QueryRow(ctx, hasVoucherSQL, couponID, customerID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking voucher of %q for %q: %w", customerID, couponID, err)
	}
	return ok, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		conditions   []byte
	)
	if err := row.Scan(
		&c.ID, &c.Code, &c.Description, &discountType, &c.Value, &c.MaxDiscount, &c.MinOrderAmount,
		&c.MinItems, &c.ValidFrom, &c.ValidUntil, &c.MaxUses, &c.Uses, &c.IsActive, &conditions,
	); err != nil {
		return c, err
	}
	c.DiscountType = coupon.DiscountType(discountType)
	if err := json.Unmarshal(conditions, &c.Conditions); err != nil {
		return c, fmt.Errorf("decoding conditions of coupon %q: %w", c.ID, err)
	}
	return c, nil
}

func scanVoucher(row pgx.CollectableRow) (coupon.Voucher, error) {
	var (
		v         coupon.Voucher
		status    string
		terms     []byte
		expiresAt *time.Time
	)
	if err := row.Scan(
		&v.ID, &v.Code, &v.CouponID, &v.CustomerID, &status, &terms, &v.IssuedAt,
		&expiresAt, &v.UsedAt, &v.OrderID,
	); err != nil {
		return v, err
	}
	v.Status = coupon.VoucherStatus(status)
	if expiresAt != nil {
		v.ExpiresAt = *expiresAt
	}
	if err := json.Unmarshal(terms, &v.Terms); err != nil {
		return v, fmt.Errorf("decoding terms of voucher %q: %w", v.ID, err)
	}
	return v, nil
}
