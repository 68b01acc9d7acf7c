package promotion

import "time"

// Lookup maps items to the single eligible promotion attached to them.
type Lookup struct {
	byProduct map[string]*Promotion
	byCombo   map[string]*Promotion
}

// Index keeps the first globally eligible promotion per product and per
// combo. Callers pass promotions sorted by priority, highest first, so the
// highest priority wins.
func Index(promos []Promotion, dayStart time.Time) Lookup {
	l := Lookup{
		byProduct: make(map[string]*Promotion),
		byCombo:   make(map[string]*Promotion),
	}
	for i := range promos {
		p := &promos[i]
		if !EligibleOnDay(p, dayStart) {
			continue
		}
		productID, comboID := p.Target()
		switch {
		case productID != "":
			if _, ok := l.byProduct[productID]; !ok {
				l.byProduct[productID] = p
			}
		case comboID != "":
			if _, ok := l.byCombo[comboID]; !ok {
				l.byCombo[comboID] = p
			}
		}
	}
	return l
}

// ForProduct returns the promotion attached to a product, or nil.
func (l Lookup) ForProduct(id string) *Promotion { return l.byProduct[id] }

// ForCombo returns the promotion attached to a combo, or nil.
func (l Lookup) ForCombo(id string) *Promotion { return l.byCombo[id] }

// CustomerCapped returns ids of indexed promotions with a per-customer cap.
func (l Lookup) CustomerCapped() []string {
	var ids []string
	for _, m := range []map[string]*Promotion{l.byProduct, l.byCombo} {
		for _, p := range m {
			if p.MaxQuantityPerCustomer > 0 {
				ids = append(ids, p.ID)
			}
		}
	}
	return ids
}

// Len returns the number of items with an attached promotion.
func (l Lookup) Len() int { return len(l.byProduct) + len(l.byCombo) }
