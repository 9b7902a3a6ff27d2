package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	calls    atomic.Int32
	failures int32
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	n := f.calls.Add(1)
	if n <= f.failures {
		return errors.New("upstream down")
	}
	return nil
}

var fastRetry = RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond, CycleTimeout: time.Second}

func TestRunOnceSucceedsFirstTry(t *testing.T) {
	r := &fakeRefresher{}
	s := New(r, time.Hour, 0, fastRetry)
	defer s.Stop()

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestRunOnceRetriesUntilSuccess(t *testing.T) {
	r := &fakeRefresher{failures: 2}
	s := New(r, time.Hour, 0, fastRetry)
	defer s.Stop()

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(3), r.calls.Load())
}

func TestRunOnceGivesUpAfterMaxRetries(t *testing.T) {
	r := &fakeRefresher{failures: 100}
	s := New(r, time.Hour, 0, fastRetry)
	defer s.Stop()

	err := s.RunOnce(context.Background())
	assert.EqualError(t, err, "upstream down")
	assert.Equal(t, int32(4), r.calls.Load())
}

func TestRunOnceStopsOnCancel(t *testing.T) {
	r := &fakeRefresher{failures: 100}
	s := New(r, time.Hour, 0, RetryPolicy{MaxRetries: 5, Backoff: time.Hour})
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := s.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestStartRejectsNonPositiveInterval(t *testing.T) {
	s := New(&fakeRefresher{}, 0, 0, fastRetry)
	defer s.Stop()

	assert.Error(t, s.Start())
}

func TestStartRunsPeriodically(t *testing.T) {
	r := &fakeRefresher{failures: 1}
	s := New(r, 50*time.Millisecond, 10*time.Millisecond, fastRetry)
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool {
		return r.calls.Load() >= 3
	}, 3*time.Second, 10*time.Millisecond)

	s.Stop()
}
