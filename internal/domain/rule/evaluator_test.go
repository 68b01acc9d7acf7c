package rule

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/foodcourt/internal/domain/calendar"
	"github.com/xenking/foodcourt/internal/domain/customer"
)

func testInput() Input {
	birth := time.Date(1995, 5, 20, 0, 0, 0, 0, time.UTC)
	return Input{
		Customer: &customer.Customer{
			ID:        "c1",
			Name:      "Nguyen Van An",
			Email:     "an@example.com",
			Phone:     "",
			Gender:    "male",
			BirthDate: &birth,
		},
		Order: Order{ItemCount: 3, Subtotal: decimal.NewFromInt(150000)},
		// Tuesday 18:30 in the store zone.
		Now: time.Date(2025, 3, 4, 18, 30, 0, 0, calendar.Location),
	}
}

func leaf(f FieldID, op Operator, v any) Node {
	return Node{FieldID: f, Operator: op, Value: v}
}

func TestEvaluate_TreeLaws(t *testing.T) {
	e := NewEvaluator(zap.NewNop())
	ctx := context.Background()

	for _, in := range []Input{{}, testInput()} {
		assert.True(t, e.Evaluate(ctx, nil, in))
		assert.True(t, e.Evaluate(ctx, &Node{}, in))
		assert.True(t, e.Evaluate(ctx, &Node{Operator: And, Conditions: []Node{}}, in))
		assert.False(t, e.Evaluate(ctx, &Node{Operator: Or, Conditions: []Node{}}, in))
	}
}

func TestEvaluate_Leaves(t *testing.T) {
	e := NewEvaluator(zap.NewNop())
	in := testInput()

	tests := []struct {
		name string
		node Node
		want bool
	}{
		{"equals string", leaf(CustomerGender, Equals, "male"), true},
		{"equals is case sensitive", leaf(CustomerGender, Equals, "MALE"), false},
		{"equals ignore case", leaf(CustomerGender, EqualsIgnoreCase, "MALE"), true},
		{"not equals", leaf(CustomerGender, NotEquals, "female"), true},
		{"contains", leaf(CustomerName, Contains, "van"), true},
		{"not contains", leaf(CustomerEmail, NotContains, "gmail"), true},
		{"is empty on blank value", leaf(CustomerPhone, IsEmpty, nil), true},
		{"is not empty", leaf(CustomerEmail, IsNotEmpty, nil), true},
		{"age gte", leaf(CustomerAge, GreaterOrEqual, 18.0), true},
		{"age lt", leaf(CustomerAge, LessThan, "25"), false},
		{"age equals numeric string", leaf(CustomerAge, Equals, "29"), true},
		{"item count gt", leaf(OrderItemCount, GreaterThan, 2.0), true},
		{"subtotal lte", leaf(OrderSubtotal, LessOrEqual, 150000.0), true},
		{"subtotal compared to garbage", leaf(OrderSubtotal, GreaterThan, "lots"), false},
		{"weekday in comma list", leaf(OrderWeekday, In, "monday, tuesday"), true},
		{"weekday in array", leaf(OrderWeekday, In, []any{"saturday", "sunday"}), false},
		{"weekday not in", leaf(OrderWeekday, NotIn, []any{"saturday", "sunday"}), true},
		{"hour between", Node{Operator: And, Conditions: []Node{
			leaf(OrderHour, GreaterOrEqual, 18.0),
			leaf(OrderHour, LessThan, 20.0),
		}}, true},
		{"or short circuits to true", Node{Operator: Or, Conditions: []Node{
			leaf(CustomerGender, Equals, "female"),
			leaf(OrderItemCount, GreaterOrEqual, 3.0),
		}}, true},
		{"lowercase group operator", Node{Operator: "and", Conditions: []Node{
			leaf(CustomerGender, Equals, "female"),
		}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Evaluate(context.Background(), &tt.node, in))
		})
	}
}

func TestEvaluate_MissingValue(t *testing.T) {
	e := NewEvaluator(zap.NewNop())
	in := Input{Order: Order{ItemCount: 1, Subtotal: decimal.NewFromInt(10)}}

	// No customer: every comparison is false, only is_empty can succeed.
	for _, op := range []Operator{Equals, NotEquals, Contains, NotContains, GreaterThan, LessThan, In, NotIn, IsNotEmpty} {
		n := leaf(CustomerAge, op, 18.0)
		assert.False(t, e.Evaluate(context.Background(), &n, in), "operator %s", op)
	}
	n := leaf(CustomerAge, IsEmpty, nil)
	assert.True(t, e.Evaluate(context.Background(), &n, in))
}

func TestEvaluate_UnknownFailsClosedAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := NewEvaluator(zap.New(core))
	in := testInput()

	tree := Node{Operator: Or, Conditions: []Node{
		leaf("loyalty_tier", Equals, "gold"),
		leaf(CustomerGender, "matches_regex", "m.*"),
		leaf(OrderItemCount, GreaterThan, 1.0),
	}}

	assert.True(t, e.Evaluate(context.Background(), &tree, in))
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "Unknown rule field", logs.All()[0].Message)
	assert.Equal(t, "Unknown rule operator", logs.All()[1].Message)

	and := Node{Operator: And, Conditions: tree.Conditions[:1]}
	assert.False(t, e.Evaluate(context.Background(), &and, in))
}

func TestRequiresContext(t *testing.T) {
	assert.False(t, RequiresContext(&Node{}))
	assert.False(t, RequiresContext(&Node{Operator: And, Conditions: []Node{
		leaf(OrderSubtotal, GreaterThan, 1.0),
		leaf(OrderWeekday, Equals, "sunday"),
	}}))
	assert.True(t, RequiresContext(&Node{Operator: Or, Conditions: []Node{
		leaf(OrderSubtotal, GreaterThan, 1.0),
		{Operator: And, Conditions: []Node{leaf(CustomerAge, GreaterThan, 18.0)}},
	}}))
	assert.False(t, RequiresContext(&Node{Operator: And, Conditions: []Node{leaf("unknown", Equals, 1)}}))
}

func TestNode_JSON(t *testing.T) {
	raw := `{"operator":"AND","conditions":[
		{"fieldId":"customer_age","operator":"gte","value":18},
		{"operator":"OR","conditions":[
			{"fieldId":"order_weekday","operator":"in","value":"saturday,sunday"},
			{"fieldId":"order_subtotal","operator":"gt","value":"200000"}
		]}
	]}`

	var n Node
	require.NoError(t, json.Unmarshal([]byte(raw), &n))
	require.NoError(t, Validate(&n))

	e := NewEvaluator(zap.NewNop())
	in := testInput()
	assert.False(t, e.Evaluate(context.Background(), &n, in))

	in.Order.Subtotal = decimal.NewFromInt(250000)
	assert.True(t, e.Evaluate(context.Background(), &n, in))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(nil))
	require.ErrorIs(t, Validate(&Node{Operator: "XOR", Conditions: []Node{{}}}), ErrMalformed)

	bad := Node{Operator: And, Conditions: []Node{leaf(CustomerAge, "between", "1,2")}}
	require.ErrorIs(t, Validate(&bad), ErrMalformed)

	unknownField := leaf("tier", Equals, "gold")
	require.ErrorIs(t, Validate(&unknownField), ErrMalformed)
}
