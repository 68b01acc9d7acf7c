package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcourt/internal/domain/auth"
	"github.com/xenking/foodcourt/internal/domain/customer"
)

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, scopes FROM api_keys
		WHERE key_hash = $1 AND is_active`

	getCustomerSQL = `SELECT id, name, email, phone, gender, birth_date FROM customers WHERE id = $1`
)

var (
	_ auth.Repository     = (*APIKeyRepository)(nil)
	_ customer.Repository = (*CustomerRepository)(nil)
)

// APIKeyRepository resolves operator API keys by their HMAC hash.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository on pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash returns auth.ErrKeyNotFound when no active key matches.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var k auth.APIKeyInfo
	err := conn(ctx, r.pool).QueryRow(ctx, getAPIKeyByHashSQL, hash).
		Scan(&k.ID, &k.KeyHash, &k.Name, &k.Scopes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &k, nil
}

// CustomerRepository reads customer profiles.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository on pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns customer.ErrNotFound for unknown ids.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	var (
		c     customer.Customer
		birth *time.Time
	)
	err := conn(ctx, r.pool).QueryRow(ctx, getCustomerSQL, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Gender, &birth)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	c.BirthDate = birth
	return &c, nil
}
