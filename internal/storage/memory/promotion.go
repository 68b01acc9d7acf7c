// Package memory provides in-process implementations of the domain
// repositories. Each store serializes access with its own mutex, which
// stands in for the per-row atomicity a database gives.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xenking/foodcourt/internal/domain/calendar"
	"github.com/xenking/foodcourt/internal/domain/promotion"
)

var (
	_ promotion.Repository = (*PromotionStore)(nil)
	_ promotion.Ledger     = (*PromotionStore)(nil)
)

// PromotionStore keeps promotions and their consumption counters.
type PromotionStore struct {
	mu     sync.Mutex
	promos map[string]*promotion.Promotion
	now    func() time.Time
}

// NewPromotionStore returns a store holding copies of promos.
func NewPromotionStore(promos ...promotion.Promotion) *PromotionStore {
	s := &PromotionStore{
		promos: make(map[string]*promotion.Promotion, len(promos)),
		now:    time.Now,
	}
	for i := range promos {
		p := promos[i]
		s.promos[p.ID] = &p
	}
	return s
}

// SetClock overrides the clock used to stamp consumption.
func (s *PromotionStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Put inserts or replaces a promotion.
func (s *PromotionStore) Put(p promotion.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promos[p.ID] = &p
}

// ListActive returns promotions active at now, highest priority first.
func (s *PromotionStore) ListActive(_ context.Context, now time.Time) ([]promotion.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []promotion.Promotion
	for _, p := range s.promos {
		if p.ActiveAt(now) {
			out = append(out, clonePromotion(p))
		}
	}
	slices.SortFunc(out, func(a, b promotion.Promotion) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// GetByID returns a snapshot of one promotion.
func (s *PromotionStore) GetByID(_ context.Context, id string) (*promotion.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promos[id]
	if !ok {
		return nil, promotion.ErrNotFound
	}
	cp := clonePromotion(p)
	return &cp, nil
}

// TryConsume runs the rollover attempt and, if it did not match, the
// same-day attempt. Each attempt is its own critical section. Inside a
// failed unit of work the consumed units are released again.
func (s *PromotionStore) TryConsume(ctx context.Context, id string, qty int) (bool, error) {
	if qty <= 0 {
		return false, nil
	}
	at, ok := s.attempt(id, qty, promotion.CanRollover, promotion.ApplyRollover)
	if !ok {
		at, ok = s.attempt(id, qty, promotion.CanIncrementSameDay, promotion.ApplySameDay)
	}
	if ok {
		onRollback(ctx, func() { s.release(id, qty, at) })
	}
	return ok, nil
}

func (s *PromotionStore) attempt(
	id string,
	qty int,
	match func(*promotion.Promotion, int, time.Time) bool,
	apply func(*promotion.Promotion, int, time.Time),
) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promos[id]
	if !ok {
		return time.Time{}, false
	}
	now := s.now()
	if !match(p, qty, calendar.StartOfDay(now)) {
		return time.Time{}, false
	}
	apply(p, qty, now)
	return now, true
}

// release gives back qty units consumed at at. The daily counter is only
// reduced while it still counts the day of consumption.
func (s *PromotionStore) release(id string, qty int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promos[id]
	if !ok {
		return
	}
	p.UsedQuantity = max(p.UsedQuantity-qty, 0)
	if p.LastUsedDate != nil && calendar.StartOfDay(*p.LastUsedDate).Equal(calendar.StartOfDay(at)) {
		p.DailyUsedCount = max(p.DailyUsedCount-qty, 0)
	}
}

func clonePromotion(p *promotion.Promotion) promotion.Promotion {
	cp := *p
	if p.LastUsedDate != nil {
		t := *p.LastUsedDate
		cp.LastUsedDate = &t
	}
	return cp
}
