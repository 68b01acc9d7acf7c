package rule

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ErrMalformed is returned by Validate for trees naming unknown fields or
// operators.
var ErrMalformed = errors.New("malformed rule")

// Evaluator interprets rule trees.
type Evaluator struct {
	lg *zap.Logger
}

// NewEvaluator returns an Evaluator that reports malformed leaves to lg.
// A nil logger falls back to the one carried by the evaluation context.
func NewEvaluator(lg *zap.Logger) *Evaluator {
	return &Evaluator{lg: lg}
}

// Evaluate reports whether in satisfies the tree. The zero node, an empty
// AND group and every satisfied group evaluate to true; an empty OR group
// evaluates to false.
func (e *Evaluator) Evaluate(ctx context.Context, n *Node, in Input) bool {
	if n.IsZero() {
		return true
	}
	return e.eval(ctx, n, in)
}

func (e *Evaluator) eval(ctx context.Context, n *Node, in Input) bool {
	if n.IsGroup() {
		switch Operator(strings.ToUpper(string(n.Operator))) {
		case And, "":
			for i := range n.Conditions {
				if !e.eval(ctx, &n.Conditions[i], in) {
					return false
				}
			}
			return true
		case Or:
			for i := range n.Conditions {
				if e.eval(ctx, &n.Conditions[i], in) {
					return true
				}
			}
			return false
		default:
			e.logger(ctx).Warn("Unknown rule group operator", zap.String("operator", string(n.Operator)))
			return false
		}
	}

	f, ok := fields[n.FieldID]
	if !ok {
		e.logger(ctx).Warn("Unknown rule field", zap.String("field", string(n.FieldID)))
		return false
	}
	cmp, ok := operators[n.Operator]
	if !ok {
		e.logger(ctx).Warn("Unknown rule operator",
			zap.String("field", string(n.FieldID)),
			zap.String("operator", string(n.Operator)),
		)
		return false
	}
	actual, present := f.extract(in)
	return cmp(actual, present, n.Value)
}

func (e *Evaluator) logger(ctx context.Context) *zap.Logger {
	if e.lg != nil {
		return e.lg
	}
	return zctx.From(ctx)
}

// Validate reports the first unknown field or operator in the tree.
// Evaluation does not depend on it; it guards admin input.
func Validate(n *Node) error {
	if n.IsZero() {
		return nil
	}
	if n.IsGroup() {
		switch Operator(strings.ToUpper(string(n.Operator))) {
		case And, Or, "":
		default:
			return fmt.Errorf("%w: group operator %q", ErrMalformed, n.Operator)
		}
		for i := range n.Conditions {
			if err := Validate(&n.Conditions[i]); err != nil {
				return err
			}
		}
		return nil
	}
	if _, ok := fields[n.FieldID]; !ok {
		return fmt.Errorf("%w: field %q", ErrMalformed, n.FieldID)
	}
	if _, ok := operators[n.Operator]; !ok {
		return fmt.Errorf("%w: operator %q", ErrMalformed, n.Operator)
	}
	return nil
}
