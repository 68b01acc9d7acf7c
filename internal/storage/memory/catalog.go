package memory

import (
	"context"
	"sync"

	"github.com/xenking/foodcourt/internal/domain/auth"
	"github.com/xenking/foodcourt/internal/domain/customer"
	"github.com/xenking/foodcourt/internal/domain/product"
)

var (
	_ product.Repository      = (*Catalog)(nil)
	_ product.ComboRepository = (*Catalog)(nil)
	_ customer.Repository     = (*Customers)(nil)
	_ auth.Repository         = (*APIKeys)(nil)
)

// Catalog holds products and combos in insertion order.
type Catalog struct {
	mu       sync.RWMutex
	products []product.Product
	combos   []product.Combo
}

// NewCatalog returns a catalog with the given items.
func NewCatalog(products []product.Product, combos []product.Combo) *Catalog {
	return &Catalog{products: products, combos: combos}
}

// ListActive returns products on sale.
func (c *Catalog) ListActive(context.Context) ([]product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []product.Product
	for _, p := range c.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetByIDs returns products matching ids regardless of their active flag.
func (c *Catalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	want := toSet(ids)
	var out []product.Product
	for _, p := range c.products {
		if _, ok := want[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListActiveCombos returns combos on sale.
func (c *Catalog) ListActiveCombos(context.Context) ([]product.Combo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []product.Combo
	for _, cb := range c.combos {
		if cb.IsActive {
			out = append(out, cb)
		}
	}
	return out, nil
}

// GetCombosByIDs returns combos matching ids regardless of their active flag.
func (c *Catalog) GetCombosByIDs(_ context.Context, ids []string) ([]product.Combo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	want := toSet(ids)
	var out []product.Combo
	for _, cb := range c.combos {
		if _, ok := want[cb.ID]; ok {
			out = append(out, cb)
		}
	}
	return out, nil
}

// Customers is a read-only customer directory.
type Customers struct {
	byID map[string]customer.Customer
}

// NewCustomers indexes customers by id.
func NewCustomers(customers ...customer.Customer) *Customers {
	m := make(map[string]customer.Customer, len(customers))
	for _, c := range customers {
		m[c.ID] = c
	}
	return &Customers{byID: m}
}

// GetByID returns a copy of the customer.
func (c *Customers) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	cu, ok := c.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &cu, nil
}

// APIKeys resolves API keys by their hash.
type APIKeys struct {
	byHash map[string]auth.APIKeyInfo
}

// NewAPIKeys indexes keys by KeyHash.
func NewAPIKeys(keys ...auth.APIKeyInfo) *APIKeys {
	m := make(map[string]auth.APIKeyInfo, len(keys))
	for _, k := range keys {
		m[k.KeyHash] = k
	}
	return &APIKeys{byHash: m}
}

// FindByHash returns auth.ErrKeyNotFound for unknown hashes.
func (a *APIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	k, ok := a.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &k, nil
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
