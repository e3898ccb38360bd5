package datanode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutGetDeleteList(t *testing.T) {
	s := NewStore()

	_, ok := s.Get("a.txt")
	assert.False(t, ok)

	s.Put("a.txt", []byte("hello"))
	got, ok := s.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)

	s.Put("b.txt", []byte("world"))
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, s.List())

	s.Delete("a.txt")
	_, ok = s.Get("a.txt")
	assert.False(t, ok)
	assert.Equal(t, []string{"b.txt"}, s.List())

	// Delete of an absent name is a no-op, not an error.
	s.Delete("a.txt")
}

func TestStoreGetReturnsACopy(t *testing.T) {
	s := NewStore()
	content := []byte("hello")
	s.Put("a.txt", content)

	got, ok := s.Get("a.txt")
	require.True(t, ok)
	got[0] = 'X'

	again, ok := s.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), again)
}

func TestParseRebalanceRoundTrip(t *testing.T) {
	args := []string{
		"2",
		"a.txt", "2", "4001", "4002",
		"b.txt", "1", "4003",
		"2", "c.txt", "d.txt",
	}

	sends, removals, err := parseRebalance(args)
	require.NoError(t, err)

	require.Len(t, sends, 2)
	assert.Equal(t, "a.txt", sends[0].name)
	assert.Equal(t, []int{4001, 4002}, sends[0].destinations)
	assert.Equal(t, "b.txt", sends[1].name)
	assert.Equal(t, []int{4003}, sends[1].destinations)

	assert.Equal(t, []string{"c.txt", "d.txt"}, removals)
}

func TestParseRebalanceEmpty(t *testing.T) {
	sends, removals, err := parseRebalance([]string{"0", "0"})
	require.NoError(t, err)
	assert.Empty(t, sends)
	assert.Empty(t, removals)
}

func TestParseRebalanceTruncatedIsError(t *testing.T) {
	_, _, err := parseRebalance([]string{"1", "a.txt", "2", "4001"})
	assert.Error(t, err)
}
