// Package rule evaluates boolean coupon conditions: AND/OR trees of leaves
// that compare a named customer or order field against a value.
//
// Rule trees are persisted as JSON and may predate the current field and
// operator sets, so an unrecognized field or operator makes its leaf false
// and is logged instead of failing the whole tree.
package rule

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/foodcourt/internal/domain/customer"
)

// Operator names a group combinator or a leaf comparison.
type Operator string

// Group combinators.
const (
	And Operator = "AND"
	Or  Operator = "OR"
)

// Leaf comparisons.
const (
	Equals           Operator = "equals"
	NotEquals        Operator = "not_equals"
	EqualsIgnoreCase Operator = "equals_ignore_case"
	Contains         Operator = "contains"
	NotContains      Operator = "not_contains"
	IsEmpty          Operator = "is_empty"
	IsNotEmpty       Operator = "is_not_empty"
	GreaterThan      Operator = "gt"
	GreaterOrEqual   Operator = "gte"
	LessThan         Operator = "lt"
	LessOrEqual      Operator = "lte"
	In               Operator = "in"
	NotIn            Operator = "not_in"
)

// Node is either a group {operator, conditions} or a leaf
// {fieldId, operator, value}. The zero Node places no restriction.
type Node struct {
	Operator   Operator `json:"operator,omitempty"`
	Conditions []Node   `json:"conditions,omitempty"`
	FieldID    FieldID  `json:"fieldId,omitempty"`
	Value      any      `json:"value,omitempty"`
}

// IsZero reports whether the node carries no rule at all.
func (n *Node) IsZero() bool {
	return n == nil || (n.Operator == "" && n.FieldID == "" && len(n.Conditions) == 0)
}

// IsGroup reports whether the node combines child conditions.
func (n *Node) IsGroup() bool {
	if n.FieldID != "" {
		return false
	}
	op := Operator(strings.ToUpper(string(n.Operator)))
	return op == And || op == Or || len(n.Conditions) > 0
}

// Input is the context a rule tree is evaluated against. Customer is nil
// for rules that do not require it.
type Input struct {
	Customer *customer.Customer
	Order    Order
	Now      time.Time
}

// Order describes the shape of the order a coupon is being applied to.
type Order struct {
	ItemCount int
	Subtotal  decimal.Decimal
}
