package customer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCustomer_Age(t *testing.T) {
	birth := time.Date(2000, 3, 15, 0, 0, 0, 0, time.UTC)
	c := &Customer{BirthDate: &birth}

	age, ok := c.Age(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, 24, age)

	age, _ = c.Age(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 25, age)

	_, ok = (&Customer{}).Age(time.Now())
	assert.False(t, ok)
}
