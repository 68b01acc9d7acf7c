package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/foodcourt/internal/domain/order"
	"github.com/xenking/foodcourt/internal/domain/promotion"
)

var (
	_ order.Repository       = (*OrderStore)(nil)
	_ order.Transactor       = Transactor{}
	_ promotion.UsageCounter = (*OrderStore)(nil)
)

// OrderStore keeps placed orders and answers per-customer promotion usage.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]order.Order
}

// NewOrderStore returns an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]order.Order)}
}

// Create stores a copy of o.
func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	cp.Items = slices.Clone(o.Items)
	s.orders[o.ID] = cp
	onRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.orders, o.ID)
	})
	return nil
}

// Get returns a copy of the order with the given id.
func (s *OrderStore) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

// UpdateStatus moves the order to `to` when its status is one of from.
func (s *OrderStore) UpdateStatus(_ context.Context, id string, from []order.Status, to order.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || !slices.Contains(from, o.Status) {
		return false, nil
	}
	o.Status = to
	s.orders[id] = o
	return true, nil
}

// GetUsedQuantity sums promoted units per promotion over the customer's
// non-canceled orders.
func (s *OrderStore) GetUsedQuantity(_ context.Context, customerID string, ids []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	used := make(map[string]int, len(ids))
	for _, id := range ids {
		used[id] = 0
	}
	for _, o := range s.orders {
		if o.CustomerID != customerID || o.Status == order.StatusCanceled {
			continue
		}
		for _, it := range o.Items {
			if _, ok := used[it.PromotionID]; ok && it.PromotionID != "" {
				used[it.PromotionID] += it.Quantity
			}
		}
	}
	return used, nil
}

// Transactor runs a unit of work against the memory stores. Writes apply
// immediately; when the unit of work fails, the writes it made are undone
// in reverse order. Concurrent callers can observe them until then.
type Transactor struct{}

type undoKey struct{}

type undoLog struct {
	mu  sync.Mutex
	fns []func()
}

// onRollback registers fn to run if the surrounding unit of work fails.
// Outside a unit of work it does nothing.
func onRollback(ctx context.Context, fn func()) {
	l, ok := ctx.Value(undoKey{}).(*undoLog)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = append(l.fns, fn)
}

func (l *undoLog) rollback() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.fns) - 1; i >= 0; i-- {
		l.fns[i]()
	}
	l.fns = nil
}

// WithinTx calls fn and undoes its writes if it returns an error. Nested
// calls join the outer unit of work.
func (Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}
	l := &undoLog{}
	if err := fn(context.WithValue(ctx, undoKey{}, l)); err != nil {
		l.rollback()
		return err
	}
	return nil
}
