package pool

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunProcessesEveryJob(t *testing.T) {
	jobs := []int{1, 2, 3, 4, 5}
	out := Run(context.Background(), 2, jobs, func(ctx context.Context, n int) (int, error) {
		return n * n, nil
	})
	var sum int
	var count int
	for r := range out {
		require.NoError(t, r.Err)
		sum += r.Value
		count++
	}
	require.Equal(t, 5, count)
	require.Equal(t, 1+4+9+16+25, sum)
}

func TestRunBoundsConcurrency(t *testing.T) {
	jobs := make([]int, 20)
	var inFlight, maxInFlight int32
	out := Run(context.Background(), 3, jobs, func(ctx context.Context, n int) (int, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if cur <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, cur) {
				break
			}
		}
		return n, nil
	})
	for range out {
	}
	require.LessOrEqual(t, int(atomic.LoadInt32(&maxInFlight)), 3)
}

func TestRunPropagatesJobErrors(t *testing.T) {
	jobs := []int{1, 2}
	out := Run(context.Background(), 2, jobs, func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			return 0, context.DeadlineExceeded
		}
		return n, nil
	})
	var errs int
	for r := range out {
		if r.Err != nil {
			errs++
		}
	}
	require.Equal(t, 1, errs)
}
