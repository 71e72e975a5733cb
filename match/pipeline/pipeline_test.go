package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/index/tree"
	"github.com/flakegraph/query/query"
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

const (
	varS query.Var = 1
	varO query.Var = 2
	varN query.Var = 3
)

func drain(ch <-chan query.Solution) []query.Solution {
	var out []query.Solution
	for s := range ch {
		out = append(out, s)
	}
	return out
}

// TestRunFansOutAcrossTwoStages confirms a two-pattern clause reduces
// every initial solution through both stages, joining bob's name onto
// alice's "knows" edge.
func TestRunFansOutAcrossTwoStages(t *testing.T) {
	const alice, bob int64 = 1, 2
	const knows, name int64 = 10, 11
	allFlakes := []flake.Flake{
		flake.New(alice, knows, flake.SidObject(bob), 0, 1, true, 0),
		flake.New(bob, name, flake.StrObject("Bob"), 0, 1, true, 0),
	}
	novelty := map[flake.Ordering][]flake.Flake{
		flake.SPOT: allFlakes,
		flake.PSOT: allFlakes,
		flake.OPST: {},
	}
	database := singleLeafDb(novelty)

	clause := []query.Pattern{
		{Kind: query.KindTuple, Tuple: query.Tuple{
			S: query.BoundMatch(flake.SidObject(alice), 0),
			P: query.BoundMatch(flake.SidObject(knows), 0),
			O: query.UnboundMatch(varS),
		}},
		{Kind: query.KindTuple, Tuple: query.Tuple{
			S: query.UnboundMatch(varS),
			P: query.BoundMatch(flake.SidObject(name), 0),
			O: query.UnboundMatch(varN),
		}},
	}

	solutions, errs := Run(context.Background(), database, query.Solution{}, clause, 2)
	got := drain(solutions)
	select {
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	default:
	}
	require.Len(t, got, 1)
	require.Equal(t, bob, got[0][varS].Val.Sid)
	require.Equal(t, "Bob", got[0][varN].Val.Str)
}

// TestRunProcessesMoreSolutionsThanOneBatch exercises stage's
// batch-then-pool.Run draining loop across a batch boundary: the first
// :tuple pattern binds batchSize+5 subjects, so the second :tuple stage
// receives more input solutions than fit in one internal batch.
func TestRunProcessesMoreSolutionsThanOneBatch(t *testing.T) {
	const pred int64 = 10
	const n = batchSize + 5

	var novelty []flake.Flake
	for i := int64(0); i < n; i++ {
		novelty = append(novelty, flake.New(i, pred, flake.StrObject("v"), 0, 1, true, 0))
	}
	database := singleLeafDb(map[flake.Ordering][]flake.Flake{flake.SPOT: novelty, flake.PSOT: novelty, flake.OPST: {}})

	clause := []query.Pattern{
		{Kind: query.KindTuple, Tuple: query.Tuple{
			S: query.UnboundMatch(varS),
			P: query.BoundMatch(flake.SidObject(pred), 0),
			O: query.UnboundMatch(varO),
		}},
		{Kind: query.KindTuple, Tuple: query.Tuple{
			S: query.UnboundMatch(varS),
			P: query.BoundMatch(flake.SidObject(pred), 0),
			O: query.UnboundMatch(varN),
		}},
	}

	solutions, errs := Run(context.Background(), database, query.Solution{}, clause, 4)
	got := drain(solutions)
	select {
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	default:
	}
	require.Len(t, got, n)
}

func TestRunWithEmptyClauseReturnsInitialSolution(t *testing.T) {
	database := singleLeafDb(map[flake.Ordering][]flake.Flake{flake.SPOT: {}, flake.OPST: {}})
	initial := query.Solution{varS: query.BoundMatch(flake.SidObject(1), 0)}
	solutions, _ := Run(context.Background(), database, initial, nil, 2)
	got := drain(solutions)
	require.Len(t, got, 1)
	require.Equal(t, initial, got[0])
}
