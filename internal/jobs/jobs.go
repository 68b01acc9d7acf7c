// Package jobs runs the periodic maintenance tasks of the service.
package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodcourt/internal/domain/calendar"
)

// VoucherExpirer moves overdue vouchers to expired.
type VoucherExpirer interface {
	ExpireDue(ctx context.Context) (int64, error)
}

// Scheduler runs jobs on store-local wall-clock time.
type Scheduler struct {
	s gocron.Scheduler
}

// NewScheduler creates a scheduler in the store's zone. Jobs are added
// with the Add methods and begin after Start.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(calendar.Location))
	if err != nil {
		return nil, errors.Wrap(err, "create scheduler")
	}
	return &Scheduler{s: s}, nil
}

// AddVoucherExpiry expires vouchers daily at 00:05 and once on start, so
// downtime across midnight leaves nothing behind.
func (s *Scheduler) AddVoucherExpiry(ctx context.Context, e VoucherExpirer) error {
	_, err := s.s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 5, 0))),
		gocron.NewTask(func() { ExpireVouchers(ctx, e) }),
		gocron.WithName("voucher-expiry"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	return errors.Wrap(err, "schedule voucher expiry")
}

// Start begins running jobs.
func (s *Scheduler) Start() { s.s.Start() }

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return errors.Wrap(s.s.Shutdown(), "shutdown scheduler")
}

// ExpireVouchers runs one expiry pass and logs the outcome.
func ExpireVouchers(ctx context.Context, e VoucherExpirer) {
	lg := zctx.From(ctx)
	start := time.Now()

	n, err := e.ExpireDue(ctx)
	if err != nil {
		lg.Error("Voucher expiry failed", zap.Error(err))
		return
	}
	lg.Info("Vouchers expired",
		zap.Int64("count", n),
		zap.Duration("duration", time.Since(start)),
	)
}
