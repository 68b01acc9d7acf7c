package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a customer id does not resolve.
var ErrNotFound = errors.New("customer not found")

// Customer is the profile data coupon conditions can inspect.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Gender    string
	BirthDate *time.Time
}

// Age returns the customer's age in whole years at now, or false when the
// birth date is unknown.
func (c *Customer) Age(now time.Time) (int, bool) {
	if c.BirthDate == nil {
		return 0, false
	}
	b := *c.BirthDate
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	return age, true
}

// Repository provides customer profile lookups.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
}
