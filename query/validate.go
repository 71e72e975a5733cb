package query

import "github.com/flakegraph/query/dberr"

// ValidateHistory checks the structural invariants spec §6 lists for a
// history request. This validation step existed in the original
// request layer and was dropped from the distilled spec; it is cheap
// and load-bearing enough to keep (see SPEC_FULL.md §4.L).
func ValidateHistory(h History) error {
	if h.S == nil && h.P == nil && h.O == nil && !h.CommitDetails {
		return dberr.New(dberr.InvalidQuery, "either history or commit-details must be present")
	}
	if h.T.At != nil && (h.T.From != nil || h.T.To != nil) {
		return dberr.New(dberr.InvalidQuery, "t.at is mutually exclusive with t.from/t.to")
	}
	if h.T.From != nil && h.T.To != nil && *h.T.From > *h.T.To {
		return dberr.New(dberr.InvalidQuery, "t.from must be <= t.to")
	}
	return nil
}

// Validate checks the structural invariants of a parsed query: a
// non-empty select and where clause, and non-negative offset and limit.
// Group-by and order-by variables are not checked.
func Validate(p Parsed) error {
	if len(p.Select) == 0 {
		return dberr.New(dberr.InvalidQuery, "query must have a select clause")
	}
	if len(p.Where) == 0 {
		return dberr.New(dberr.InvalidQuery, "query must have a where clause")
	}
	if p.Offset < 0 {
		return dberr.New(dberr.InvalidQuery, "offset must be >= 0")
	}
	if p.Limit < 0 {
		return dberr.New(dberr.InvalidQuery, "limit must be >= 0")
	}
	return nil
}
