package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetPutRoundTrips(t *testing.T) {
	c, err := New[string, int]("test", 4, 1, nil)
	require.NoError(t, err)
	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestInvalidatePurgesOnVersionChange(t *testing.T) {
	c, err := New[string, int]("test", 4, 1, nil)
	require.NoError(t, err)
	c.Put("a", 1)
	c.Invalidate(2)
	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestInvalidateNoOpOnSameVersion(t *testing.T) {
	c, err := New[string, int]("test", 4, 1, nil)
	require.NoError(t, err)
	c.Put("a", 1)
	c.Invalidate(1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}
