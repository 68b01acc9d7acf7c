package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingExpirer struct {
	calls atomic.Int64
	n     int64
	err   error
}

func (e *countingExpirer) ExpireDue(context.Context) (int64, error) {
	e.calls.Add(1)
	return e.n, e.err
}

func TestExpireVouchers(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		ctx := zctx.Base(context.Background(), zap.New(core))

		ExpireVouchers(ctx, &countingExpirer{n: 3})

		entries := logs.FilterMessage("Vouchers expired").All()
		require.Len(t, entries, 1)
		assert.Equal(t, int64(3), entries[0].ContextMap()["count"])
	})

	t.Run("Error", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		ctx := zctx.Base(context.Background(), zap.New(core))

		ExpireVouchers(ctx, &countingExpirer{err: assert.AnError})

		assert.Equal(t, 1, logs.FilterMessage("Voucher expiry failed").Len())
		assert.Zero(t, logs.FilterMessage("Vouchers expired").Len())
	})
}

func TestScheduler_RunsOnStart(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	e := &countingExpirer{}
	require.NoError(t, s.AddVoucherExpiry(context.Background(), e))

	s.Start()
	assert.Eventually(t, func() bool {
		return e.calls.Load() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Shutdown())
}
