package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flakegraph/query/dberr"
	"github.com/flakegraph/query/flake"
)

func requireInvalidQuery(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	e, ok := dberr.As(err)
	require.True(t, ok)
	require.Equal(t, dberr.InvalidQuery, e.Code())
}

func TestValidateRejectsEmptySelect(t *testing.T) {
	p := Parsed{Where: []Pattern{{Kind: KindTuple}}}
	requireInvalidQuery(t, Validate(p))
}

func TestValidateRejectsEmptyWhere(t *testing.T) {
	p := Parsed{Select: []Selector{{Kind: SelectVar, Var: 1}}}
	requireInvalidQuery(t, Validate(p))
}

func TestValidateRejectsNegativeOffsetOrLimit(t *testing.T) {
	base := Parsed{Where: []Pattern{{Kind: KindTuple}}, Select: []Selector{{Kind: SelectVar, Var: 1}}}
	p := base
	p.Offset = -1
	requireInvalidQuery(t, Validate(p))

	p = base
	p.Limit = -1
	requireInvalidQuery(t, Validate(p))
}

func TestValidateAcceptsWellFormedQuery(t *testing.T) {
	p := Parsed{
		Where:  []Pattern{{Kind: KindTuple}},
		Select: []Selector{{Kind: SelectVar, Var: 1}},
	}
	require.NoError(t, Validate(p))
}

func TestValidateHistoryRejectsEmptyRequest(t *testing.T) {
	requireInvalidQuery(t, ValidateHistory(History{}))
}

func TestValidateHistoryRejectsAtCombinedWithFromTo(t *testing.T) {
	at := int64(5)
	from := int64(1)
	h := History{CommitDetails: true, T: TRange{At: &at, From: &from}}
	requireInvalidQuery(t, ValidateHistory(h))
}

func TestValidateHistoryRejectsFromGreaterThanTo(t *testing.T) {
	from := int64(10)
	to := int64(1)
	h := History{CommitDetails: true, T: TRange{From: &from, To: &to}}
	requireInvalidQuery(t, ValidateHistory(h))
}

func TestValidateHistoryAcceptsWellFormedWindow(t *testing.T) {
	from := int64(1)
	to := int64(10)
	h := History{S: &Match{Bound: true, Val: flake.SidObject(1)}, T: TRange{From: &from, To: &to}}
	require.NoError(t, ValidateHistory(h))
}
