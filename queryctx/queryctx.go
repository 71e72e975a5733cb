// Package queryctx is the per-query context spec §2 lists alongside
// dberr and cache: the correlation id, fuel counter, and error sink
// threaded through one query's execution, plus the structured logger
// every component logs through.
package queryctx

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/flakegraph/query/dberr"
)

// Context carries the ambient, cross-component state for a single
// query execution (spec §1.1: correlation ids threaded through the
// error sink and logs). It is not a context.Context itself — every
// blocking call still takes one of those separately for cancellation —
// but a value every stage can read without re-deriving an id or a log
// field set.
type Context struct {
	ID uuid.UUID

	Sink *dberr.Sink

	maxFuel int64
	spent   int64

	log *logrus.Entry
}

// New starts a Context for one query, with a fresh correlation id, a
// fuel ceiling of maxFuel (0 = unlimited, per spec §4.J's Fuel), and a
// logger carrying query_id as a structured field for every entry this
// query logs (spec §1.1: fields "query_id, component, t").
func New(maxFuel int64, logger *logrus.Logger) *Context {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	id := uuid.New()
	return &Context{
		ID:      id,
		Sink:    dberr.NewSink(8),
		maxFuel: maxFuel,
		log:     logger.WithField("query_id", id.String()),
	}
}

// Log returns the query's logger, scoped to component (spec §1.1's
// "component" field).
func (c *Context) Log(component string) *logrus.Entry {
	return c.log.WithField("component", component)
}

// Spend charges n units against the query's fuel ceiling, returning
// dberr.ExceededCost once the running total crosses maxFuel. It is
// safe for concurrent use, since pipeline stages fan out across
// goroutines (spec §5).
func (c *Context) Spend(n int64) error {
	spent := atomic.AddInt64(&c.spent, n)
	if c.maxFuel <= 0 {
		return nil
	}
	if spent > c.maxFuel {
		c.Log("fuel").WithFields(logrus.Fields{"spent": spent, "max": c.maxFuel}).
			Warn("query aborted: exceeded cost ceiling")
		return dberr.New(dberr.ExceededCost, "query exceeded cost ceiling of %d", c.maxFuel)
	}
	return nil
}

// Spent reports fuel charged so far.
func (c *Context) Spent() int64 { return atomic.LoadInt64(&c.spent) }

// MaxFuel returns the query's fuel ceiling (0 = unlimited), for callers
// that hand it to a component with its own fuel tracker (e.g.
// graphcrawl.NewFuel) instead of calling Spend directly.
func (c *Context) MaxFuel() int64 { return c.maxFuel }
