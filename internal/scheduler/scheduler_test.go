package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsJobOnSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	var runs atomic.Int64
	err := s.AddJob("@every 1s", JobFunc("tick", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return runs.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_PanicDoesNotKillScheduler(t *testing.T) {
	s := New(zerolog.Nop())

	var survived atomic.Bool
	require.NoError(t, s.AddJob("@every 1s", JobFunc("boom", func(ctx context.Context) error {
		panic("kaboom")
	})))
	require.NoError(t, s.AddJob("@every 1s", JobFunc("ok", func(ctx context.Context) error {
		survived.Store(true)
		return nil
	})))

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, survived.Load, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_SkipsAfterContextCancelled(t *testing.T) {
	s := New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int64
	require.NoError(t, s.AddJob("@every 1s", JobFunc("tick", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})))

	cancel()
	s.Start(ctx)
	defer s.Stop()

	time.Sleep(1500 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", JobFunc("bad", func(ctx context.Context) error { return nil }))
	assert.Error(t, err)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	wantErr := errors.New("job error")

	err := s.RunNow(context.Background(), JobFunc("once", func(ctx context.Context) error {
		return wantErr
	}))
	assert.ErrorIs(t, err, wantErr)
}
