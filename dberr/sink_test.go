package dberr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSinkSendAndFirst(t *testing.T) {
	s := NewSink(2)
	_, ok := s.First()
	require.False(t, ok)

	s.Send(New(InvalidQuery, "boom"))
	err, ok := s.First()
	require.True(t, ok)
	require.Error(t, err)
}

func TestSinkSendNilIsNoOp(t *testing.T) {
	s := NewSink(1)
	s.Send(nil)
	_, ok := s.First()
	require.False(t, ok)
}

func TestSinkSendDropsWhenFull(t *testing.T) {
	s := NewSink(1)
	s.Send(New(InvalidQuery, "first"))
	s.Send(New(InvalidQuery, "second")) // dropped, buffer full
	require.Len(t, s.ch, 1)
}
