// Package pipeline implements the solution pipeline (spec §4.F):
// match-clause reduces over a clause's patterns, piping solutions
// through match.Pattern at a fixed parallelism, with intrinsic
// backpressure since a bounded channel send blocks until a downstream
// consumer pulls.
package pipeline

import (
	"context"

	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/internal/pool"
	"github.com/flakegraph/query/match"
	"github.com/flakegraph/query/query"
)

// batchSize bounds how many solutions stage pulls off its input channel
// before handing them to pool.Run, so one stage never has to materialize
// an entire (potentially unbounded) frontier in memory at once.
const batchSize = 64

// Run reduces over clause's patterns starting from initial, returning a
// channel of final solutions and an error sink. parallelism <= 0 uses
// the spec default of 2.
func Run(ctx context.Context, database *db.Db, initial query.Solution, clause []query.Pattern, parallelism int) (<-chan query.Solution, <-chan error) {
	if parallelism <= 0 {
		parallelism = 2
	}
	errs := make(chan error, len(clause)+1)

	frontier := make(chan query.Solution, 1)
	frontier <- initial
	close(frontier)

	var out <-chan query.Solution = frontier
	for _, p := range clause {
		out = stage(ctx, database, out, p, parallelism, errs)
	}
	return out, errs
}

// stage applies pattern p to every solution on in, draining in in
// batches of up to batchSize and running each batch through pool.Run so
// at most parallelism solutions are expanded by match.Pattern
// concurrently. A batch doesn't wait for the full input to arrive before
// it starts, only for up to batchSize solutions or in's close.
func stage(ctx context.Context, database *db.Db, in <-chan query.Solution, p query.Pattern, parallelism int, errs chan<- error) <-chan query.Solution {
	out := make(chan query.Solution)
	go func() {
		defer close(out)
		for {
			batch := make([]query.Solution, 0, batchSize)
			for len(batch) < batchSize {
				sol, ok := <-in
				if !ok {
					break
				}
				batch = append(batch, sol)
			}
			if len(batch) == 0 {
				return
			}

			results := pool.Run(ctx, parallelism, batch, func(ctx context.Context, sol query.Solution) ([]query.Solution, error) {
				inner := match.Pattern(ctx, database, sol, p, errs)
				var exts []query.Solution
				for ext := range inner {
					exts = append(exts, ext)
				}
				return exts, nil
			})
			for r := range results {
				for _, ext := range r.Value {
					select {
					case out <- ext:
					case <-ctx.Done():
						return
					}
				}
			}

			if len(batch) < batchSize {
				return
			}
		}
	}()
	return out
}
