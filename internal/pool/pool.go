// Package pool implements the bounded-worker-pool helper that
// match/pipeline's stages run their batches through (spec §5;
// index/tree.Chan bounds its fetches with its own semaphore): run n jobs
// with at most parallelism concurrently in flight, emitting results on
// a channel in completion order rather than submission order, since
// nothing downstream needs original order preserved once a stage has
// already fanned out.
package pool

import (
	"context"
	"sync"
)

// Result pairs a job's output with any error it produced.
type Result[R any] struct {
	Value R
	Err   error
}

// Run executes fn over every item in jobs, at most parallelism at a
// time, and returns a channel of Results that closes once every job has
// completed or ctx is canceled.
func Run[T, R any](ctx context.Context, parallelism int, jobs []T, fn func(context.Context, T) (R, error)) <-chan Result[R] {
	if parallelism <= 0 {
		parallelism = 1
	}
	out := make(chan Result[R])
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	go func() {
		defer close(out)
		for _, job := range jobs {
			job := job
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				v, err := fn(ctx, job)
				select {
				case out <- Result[R]{Value: v, Err: err}:
				case <-ctx.Done():
				}
			}()
		}
		wg.Wait()
	}()

	return out
}
