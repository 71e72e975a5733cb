// Package db defines the immutable query-time snapshot that every other
// component reads from: current transaction id, per-index roots and
// novelty, the schema cache, statistics, and the authorization policy.
package db

import (
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/index/tree"
	"github.com/flakegraph/query/schema"
)

// Stats exposes the per-property and per-class cardinality estimates
// the optimizer scores patterns against (spec §4.G).
type Stats interface {
	Count(predSid int64) (int64, bool)
	NdvValues(predSid int64) (int64, bool)
	NdvSubjects(predSid int64) (int64, bool)
	ClassCount(classSid int64) (int64, bool)
}

// Policy gates individual flakes (spec §4.C step 5). The policy engine
// itself is an external collaborator (spec §1); this is the single
// predicate this library calls into it through.
type Policy interface {
	// Root reports whether the current request bypasses authorization
	// entirely (root/admin view).
	Root() bool
	// AllowFlake reports whether f is visible to the current request.
	// May invoke user-defined predicate functions and so may block;
	// callers must treat it as a suspension point (spec §5).
	AllowFlake(f flake.Flake) (bool, error)
	// IsSchemaFlake reports whether f is a schema flake, which is
	// always permitted regardless of AllowFlake (spec §4.C step 5).
	IsSchemaFlake(f flake.Flake) bool
}

// Db is an immutable snapshot. A db is never mutated; every apparent
// mutation (advancing t, adding novelty) produces a new Db value.
type Db struct {
	T int64

	// Roots is the current root node handle per index ordering.
	Roots map[flake.Ordering]tree.Handle
	// Novelty is the sorted, per-ordering set of uncommitted flakes.
	Novelty map[flake.Ordering][]flake.Flake

	Schema *schema.Cache
	Stats  Stats
	Policy Policy

	// Fetcher performs the raw (possibly remote/disk) node fetch that
	// fronts every index traversal; callers typically wrap it once in
	// a tree.CachingFetcher shared across queries.
	Fetcher tree.Fetcher
}

// Root returns the root handle for an index ordering.
func (d *Db) Root(o flake.Ordering) tree.Handle { return d.Roots[o] }

// NoveltyFor returns the novelty slice for an index ordering.
func (d *Db) NoveltyFor(o flake.Ordering) []flake.Flake { return d.Novelty[o] }
