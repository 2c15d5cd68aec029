package sets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetBasics(t *testing.T) {
	s := New("a", "b")
	s.Add("c")
	require.True(t, s.Has("b"))
	s.Delete("b")
	require.False(t, s.Has("b"))

	c := s.Clone()
	c.Add("z")
	require.False(t, s.Has("z"))
}

func TestDifference(t *testing.T) {
	onDisk := New("x", "y", "z")
	wanted := New("y")
	require.Equal(t, []string{"x", "z"}, Sorted(onDisk.Difference(wanted)))
	require.Empty(t, New[string]().Difference(wanted))
}
