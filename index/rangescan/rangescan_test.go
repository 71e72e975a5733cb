package rangescan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/index/tree"
)

type memFetcher map[tree.Handle]tree.Node

func (m memFetcher) Fetch(ctx context.Context, h tree.Handle) (tree.Node, error) {
	return m[h], nil
}

func singleLeafDb(novelty map[flake.Ordering][]flake.Flake) *db.Db {
	roots := map[flake.Ordering]tree.Handle{
		flake.SPOT: "root", flake.PSOT: "root", flake.POST: "root", flake.OPST: "root", flake.TSPOT: "root",
	}
	return &db.Db{
		T:       1,
		Roots:   roots,
		Novelty: novelty,
		Fetcher: memFetcher{"root": tree.Node{Handle: "root", Leaf: true, Leftmost: true}},
	}
}

func TestIndexRangeReturnsMatchingFlakes(t *testing.T) {
	const pred int64 = 10
	novelty := []flake.Flake{
		flake.New(1, pred, flake.StrObject("a"), 0, 1, true, 0),
		flake.New(2, pred, flake.StrObject("b"), 0, 1, true, 0),
	}
	database := singleLeafDb(map[flake.Ordering][]flake.Flake{flake.PSOT: novelty})

	flakes, err := IndexRange(context.Background(), database, flake.PSOT,
		flake.GTE, Bound{P: I64(pred)},
		flake.LTE, Bound{P: I64(pred)},
		Options{})
	require.NoError(t, err)
	require.Len(t, flakes, 2)
}

func TestIndexRangeAppliesObjectFn(t *testing.T) {
	const pred int64 = 10
	novelty := []flake.Flake{
		flake.New(1, pred, flake.StrObject("a"), 0, 1, true, 0),
		flake.New(2, pred, flake.StrObject("b"), 0, 1, true, 0),
	}
	database := singleLeafDb(map[flake.Ordering][]flake.Flake{flake.PSOT: novelty})

	flakes, err := IndexRange(context.Background(), database, flake.PSOT,
		flake.GTE, Bound{P: I64(pred)},
		flake.LTE, Bound{P: I64(pred)},
		Options{ObjectFn: func(o flake.Object) bool { return o.Str == "b" }})
	require.NoError(t, err)
	require.Len(t, flakes, 1)
	require.Equal(t, "b", flakes[0].O.Str)
}

func TestIndexRangePagesBySubject(t *testing.T) {
	const pred int64 = 10
	novelty := []flake.Flake{
		flake.New(1, pred, flake.StrObject("a"), 0, 1, true, 0),
		flake.New(2, pred, flake.StrObject("b"), 0, 1, true, 0),
		flake.New(3, pred, flake.StrObject("c"), 0, 1, true, 0),
	}
	database := singleLeafDb(map[flake.Ordering][]flake.Flake{flake.SPOT: novelty})

	flakes, err := IndexRange(context.Background(), database, flake.SPOT,
		flake.GTE, Bound{},
		flake.LTE, Bound{},
		Options{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, flakes, 1)
	require.Equal(t, int64(2), flakes[0].S)
}

// fakePolicy denies a single flagged subject and otherwise allows
// everything, never treating anything as a schema flake.
type fakePolicy struct{ deny int64 }

func (p fakePolicy) Root() bool { return false }
func (p fakePolicy) AllowFlake(f flake.Flake) (bool, error) { return f.S != p.deny, nil }
func (p fakePolicy) IsSchemaFlake(flake.Flake) bool         { return false }

func TestIndexRangeFiltersThroughPolicy(t *testing.T) {
	const pred int64 = 10
	novelty := []flake.Flake{
		flake.New(1, pred, flake.StrObject("a"), 0, 1, true, 0),
		flake.New(2, pred, flake.StrObject("b"), 0, 1, true, 0),
	}
	database := singleLeafDb(map[flake.Ordering][]flake.Flake{flake.PSOT: novelty})
	database.Policy = fakePolicy{deny: 1}

	flakes, err := IndexRange(context.Background(), database, flake.PSOT,
		flake.GTE, Bound{P: I64(pred)},
		flake.LTE, Bound{P: I64(pred)},
		Options{})
	require.NoError(t, err)
	require.Len(t, flakes, 1)
	require.Equal(t, int64(2), flakes[0].S)
}

func TestIndexRangeAppliesFlakeLimit(t *testing.T) {
	const pred int64 = 10
	novelty := []flake.Flake{
		flake.New(1, pred, flake.StrObject("a"), 0, 1, true, 0),
		flake.New(2, pred, flake.StrObject("b"), 0, 1, true, 0),
		flake.New(3, pred, flake.StrObject("c"), 0, 1, true, 0),
	}
	database := singleLeafDb(map[flake.Ordering][]flake.Flake{flake.PSOT: novelty})

	flakes, err := IndexRange(context.Background(), database, flake.PSOT,
		flake.GTE, Bound{P: I64(pred)},
		flake.LTE, Bound{P: I64(pred)},
		Options{FlakeLimit: 2})
	require.NoError(t, err)
	require.Len(t, flakes, 2)
}
