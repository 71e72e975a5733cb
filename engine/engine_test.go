package engine

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

func singleLeafDb(novelty map[flake.Ordering][]flake.Flake, t int64) *db.Db {
	roots := map[flake.Ordering]tree.Handle{
		flake.SPOT: "root", flake.PSOT: "root", flake.POST: "root", flake.OPST: "root", flake.TSPOT: "root",
	}
	return &db.Db{
		T:       t,
		Roots:   roots,
		Novelty: novelty,
		Fetcher: memFetcher{"root": tree.Node{Handle: "root", Leaf: true, Leftmost: true}},
	}
}

const (
	alice int64 = 1
	name  int64 = 10
)

const varPerson query.Var = 1
const varName query.Var = 2

func TestExecuteRunsWhereClauseAndShapesRows(t *testing.T) {
	novelty := map[flake.Ordering][]flake.Flake{
		flake.SPOT: {flake.New(alice, name, flake.StrObject("Alice"), 0, 1, true, 0)},
		flake.PSOT: {flake.New(alice, name, flake.StrObject("Alice"), 0, 1, true, 0)},
		flake.OPST: {},
	}
	database := singleLeafDb(novelty, 1)

	parsed := query.Parsed{
		Where: []query.Pattern{
			{
				Kind: query.KindTuple,
				Tuple: query.Tuple{
					S: query.UnboundMatch(varPerson),
					P: query.BoundMatch(flake.SidObject(name), 0),
					O: query.UnboundMatch(varName),
				},
			},
		},
		Select: []query.Selector{
			{Kind: query.SelectVar, Var: varName, Label: "name"},
		},
		Opts: query.DefaultOptions(),
	}

	e := New()
	result, err := e.Execute(context.Background(), database, parsed)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.Equal(t, "Alice", result.Rows[0]["name"])
	require.NotEmpty(t, result.QueryID)
}

func TestHistoryRunsQueryAndResolvesSubgraphs(t *testing.T) {
	novelty := map[flake.Ordering][]flake.Flake{
		flake.SPOT: {flake.New(alice, name, flake.StrObject("Alice"), 0, 1, true, 0)},
		flake.OPST: {},
	}
	database := singleLeafDb(novelty, 1)

	h := query.History{S: &query.Match{Bound: true, Val: flake.SidObject(alice)}}
	e := New()
	entries, err := e.History(context.Background(), database, h, &query.SubgraphSpec{Wildcard: true, WithID: true})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].AssertedNodes, 1)
	require.Equal(t, alice, entries[0].AssertedNodes[0]["_id"])
}
