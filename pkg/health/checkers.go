package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running,
// which usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is a dependency that can be probed with a round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when the dependency does not answer a ping.
func PingCheck(name string, p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return errors.Wrapf(p.Ping(ctx), "ping %s", name)
	}
}
