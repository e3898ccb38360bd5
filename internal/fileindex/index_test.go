package fileindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitStoreRejectsDuplicate(t *testing.T) {
	ix := New()
	require.NoError(t, ix.AdmitStore("a.txt", 5, []int{4001, 4002}))

	err := ix.AdmitStore("a.txt", 5, []int{4003, 4004})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestStoreLifecycleVisibility(t *testing.T) {
	ix := New()
	require.NoError(t, ix.AdmitStore("a.txt", 5, []int{4001, 4002}))

	assert.Empty(t, ix.SnapshotVisible())

	ix.MarkStoreComplete("a.txt")
	assert.Equal(t, []string{"a.txt"}, ix.SnapshotVisible())

	e, ok := ix.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, StoreComplete, e.Status)
	assert.Equal(t, []int{4001, 4002}, e.Replicas)
}

func TestStoreTimeoutDrops(t *testing.T) {
	ix := New()
	require.NoError(t, ix.AdmitStore("a.txt", 5, []int{4001, 4002}))
	ix.Drop("a.txt")

	_, ok := ix.Get("a.txt")
	assert.False(t, ok)

	// a later STORE of the same name is admitted again
	assert.NoError(t, ix.AdmitStore("a.txt", 5, []int{4001, 4002}))
}

func TestAdmitRemoveRequiresVisible(t *testing.T) {
	ix := New()
	err := ix.AdmitRemove("missing.txt")
	assert.ErrorIs(t, err, ErrNotVisible)

	require.NoError(t, ix.AdmitStore("a.txt", 5, []int{4001}))
	// still in progress, not visible
	err = ix.AdmitRemove("a.txt")
	assert.ErrorIs(t, err, ErrNotVisible)

	ix.MarkStoreComplete("a.txt")
	require.NoError(t, ix.AdmitRemove("a.txt"))

	e, ok := ix.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, RemoveInProgress, e.Status)

	// not visible to LIST while removal is in progress
	assert.Empty(t, ix.SnapshotVisible())
}

func TestScrubNodeRemovesFromReplicas(t *testing.T) {
	ix := New()
	require.NoError(t, ix.AdmitStore("a.txt", 5, []int{4001, 4002, 4003}))
	ix.ScrubNode(4002)

	e, ok := ix.Get("a.txt")
	require.True(t, ok)
	assert.ElementsMatch(t, []int{4001, 4003}, e.Replicas)
}

func TestHasInFlight(t *testing.T) {
	ix := New()
	assert.False(t, ix.HasInFlight())

	require.NoError(t, ix.AdmitStore("a.txt", 5, []int{4001}))
	assert.True(t, ix.HasInFlight())

	ix.MarkStoreComplete("a.txt")
	assert.False(t, ix.HasInFlight())

	require.NoError(t, ix.AdmitRemove("a.txt"))
	assert.True(t, ix.HasInFlight())
}
