package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/internal/testutil"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockProvider()
	down := errors.New("connection refused")
	mock.FailOn("Ping", down)

	b := provider.WithBreaker(mock, provider.BreakerConfig{FailThreshold: 3, Cooldown: time.Hour}, nil)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Ping(ctx), down)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	mock.FailOn("Ping", nil)
	assert.ErrorIs(t, b.Ping(ctx), gobreaker.ErrOpenState, "open breaker fails fast")
}

func TestBreaker_NotFoundDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	b := provider.WithBreaker(testutil.NewMockProvider(), provider.BreakerConfig{FailThreshold: 1}, nil)

	for i := 0; i < 5; i++ {
		_, err := b.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, provider.ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockProvider()
	mock.FailOn("PutRun", errors.New("timeout"))

	b := provider.WithBreaker(mock, provider.BreakerConfig{FailThreshold: 1, Cooldown: time.Millisecond}, nil)
	require.Error(t, b.PutRun(ctx, types.RunRecord{RunID: "r1"}))
	assert.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(5 * time.Millisecond)
	mock.FailOn("PutRun", nil)
	require.NoError(t, b.PutRun(ctx, types.RunRecord{RunID: "r1"}))
	assert.Equal(t, gobreaker.StateClosed, b.State())

	run, err := b.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", run.RunID)
}

func TestBreaker_ReleaseLockBypassesOpenCircuit(t *testing.T) {
	ctx := context.Background()
	mock := testutil.NewMockProvider()
	b := provider.WithBreaker(mock, provider.BreakerConfig{FailThreshold: 1, Cooldown: time.Hour}, nil)

	ok, err := b.AcquireLock(ctx, "publish", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mock.FailOn("Ping", errors.New("down"))
	_ = b.Ping(ctx)
	require.Equal(t, gobreaker.StateOpen, b.State())

	require.NoError(t, b.ReleaseLock(ctx, "publish"))
	assert.Empty(t, mock.Locks())
}
