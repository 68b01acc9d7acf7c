package promotion

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type instrumentedLedger struct {
	next     Ledger
	attempts metric.Int64Counter
	units    metric.Int64Counter
}

// InstrumentLedger wraps a Ledger with consumption counters labelled by
// outcome (consumed, exhausted, error).
func InstrumentLedger(next Ledger, meter metric.Meter) (Ledger, error) {
	attempts, err := meter.Int64Counter("promotion.consume.attempts",
		metric.WithDescription("Promotion consumption attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "attempts counter")
	}
	units, err := meter.Int64Counter("promotion.consume.units",
		metric.WithDescription("Promotion units reserved"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "units counter")
	}
	return &instrumentedLedger{next: next, attempts: attempts, units: units}, nil
}

func (l *instrumentedLedger) TryConsume(ctx context.Context, id string, qty int) (bool, error) {
	ok, err := l.next.TryConsume(ctx, id, qty)

	outcome := "consumed"
	switch {
	case err != nil:
		outcome = "error"
	case !ok:
		outcome = "exhausted"
	}
	l.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if ok {
		l.units.Add(ctx, int64(qty))
	}
	return ok, err
}
