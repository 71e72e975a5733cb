package tree

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flakegraph/query/flake"
)

// Resolver turns a fetched leaf node into the flake slice callers see:
// the T-range variant merges novelty and eliminates shadowed
// retractions; the history-range variant merges every version with no
// elimination. Both satisfy this interface.
type Resolver interface {
	Resolve(leaf Node) []flake.Flake
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(leaf Node) []flake.Flake

func (f ResolverFunc) Resolve(leaf Node) []flake.Flake { return f(leaf) }

// Transducer transforms a leaf's resolved flakes before they are
// emitted on the output channel (component filters, policy, subject
// paging, ...). It may return a shorter slice, including empty.
type Transducer func([]flake.Flake) []flake.Flake

// Chan traverses the tree rooted at root depth-first, left-to-right,
// fetching and resolving each in-range leaf, applying transduce to its
// content, and emitting the result on the returned channel in index
// order. Sibling subtrees are fetched concurrently, bounded by
// parallelism, but their leaf output is still forwarded in left-to-right
// order: a branch node fully drains one child's channel before moving
// to the next. Errors are sent to errs (non-blocking, capacity-1
// channel) and stop traversal; the output channel is always closed when
// traversal ends.
func Chan(
	ctx context.Context,
	fetcher Fetcher,
	resolver Resolver,
	root Handle,
	cmp flake.Comparator,
	start, end flake.Flake,
	parallelism int,
	transduce Transducer,
	errs chan<- error,
) <-chan []flake.Flake {
	if parallelism < 1 {
		parallelism = 1
	}
	sem := make(chan struct{}, parallelism)
	var failed int32
	var once sync.Once

	fail := func(err error) {
		if atomic.CompareAndSwapInt32(&failed, 0, 1) {
			once.Do(func() {
				select {
				case errs <- err:
				default:
				}
			})
		}
	}
	isFailed := func() bool { return atomic.LoadInt32(&failed) == 1 }

	var walk func(h Handle) <-chan []flake.Flake
	walk = func(h Handle) <-chan []flake.Flake {
		ch := make(chan []flake.Flake)
		go func() {
			defer close(ch)
			if isFailed() || ctx.Err() != nil {
				return
			}

			sem <- struct{}{}
			n, err := fetcher.Fetch(ctx, h)
			<-sem
			if err != nil {
				fail(err)
				return
			}
			if !InRange(n, cmp, start, end) {
				return
			}

			if n.Leaf {
				leaf := resolver.Resolve(n)
				leaf = flake.Subrange(leaf, cmp, flake.GTE, start, flake.LTE, end)
				if transduce != nil {
					leaf = transduce(leaf)
				}
				if len(leaf) == 0 {
					return
				}
				select {
				case ch <- leaf:
				case <-ctx.Done():
					fail(ctx.Err())
				}
				return
			}

			// Launch every child's fetch up front so siblings race for the
			// semaphore concurrently, then drain each channel in order so
			// output stays left-to-right despite the concurrent fetch.
			childChs := make([]<-chan []flake.Flake, len(n.Children))
			for i, child := range n.Children {
				if isFailed() {
					return
				}
				childChs[i] = walk(child)
			}
			for _, childCh := range childChs {
				for leaf := range childCh {
					select {
					case ch <- leaf:
					case <-ctx.Done():
						fail(ctx.Err())
						return
					}
				}
				if isFailed() {
					return
				}
			}
		}()
		return ch
	}

	return walk(root)
}
