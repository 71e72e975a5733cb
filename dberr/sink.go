package dberr

// Sink is the error-sink channel wrapper spec §7 names alongside
// Coalesce as the two ambient pieces every pipeline stage is built
// around: a buffered channel that every concurrent stage can send a
// non-nil error to without blocking on a reader that may arrive late
// or never (the caller stopped pulling the result channel once it saw
// ctx canceled).
type Sink struct {
	ch chan error
}

// NewSink returns a Sink with room for cap buffered errors before a
// Send would block (queryctx.New uses 8; match/pipeline.Run sizes its
// own errs channel, a plain chan error, to the clause length).
func NewSink(cap int) *Sink {
	if cap < 1 {
		cap = 1
	}
	return &Sink{ch: make(chan error, cap)}
}

// Send reports err without blocking if the sink's buffer is full;
// a full sink means something already reported failure and this
// report would be redundant, so a dropped send here is not itself an
// error.
func (s *Sink) Send(err error) {
	if err == nil {
		return
	}
	select {
	case s.ch <- err:
	default:
	}
}

// First returns the first error reported, if any, without blocking.
func (s *Sink) First() (error, bool) {
	select {
	case err := <-s.ch:
		return err, true
	default:
		return nil, false
	}
}

// Chan exposes the underlying channel for callers that want to select
// on it directly alongside other channels (spec §5's fan-in pattern).
func (s *Sink) Chan() <-chan error { return s.ch }
