package logbuf

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -50} {
		_, err := New(capacity)
		require.ErrorIs(t, err, ErrInvalidCapacity, "capacity %d", capacity)
	}
}

func TestRingReturnsInsertionOrderBeforeWrap(t *testing.T) {
	ring, err := New(5)
	require.NoError(t, err)

	assert.True(t, ring.IsEmpty())
	assert.False(t, ring.IsFull())

	ring.Insert(NewEntry(LevelInfo, "first"))
	ring.Insert(NewEntry(LevelInfo, "second"))
	ring.Insert(NewEntry(LevelInfo, "third"))

	entries := ring.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
	assert.Equal(t, "third", entries[2].Message)
	assert.Equal(t, 3, ring.Len())
	assert.False(t, ring.IsFull())
}

func TestRingKeepsTheMostRecentEntriesAfterWrap(t *testing.T) {
	const capacity = 5
	const inserted = 17

	ring, err := New(capacity)
	require.NoError(t, err)

	for i := 1; i <= inserted; i++ {
		ring.Insert(NewEntry(LevelInfo, fmt.Sprintf("entry-%d", i)))
	}

	entries := ring.All()
	require.Len(t, entries, capacity)
	for i, entry := range entries {
		assert.Equal(t, fmt.Sprintf("entry-%d", inserted-capacity+1+i), entry.Message)
	}
	assert.True(t, ring.IsFull())
	assert.Equal(t, capacity, ring.Len())
}

func TestRingOrderIsStableAtEveryFillLevel(t *testing.T) {
	const capacity = 4

	for total := 1; total <= 3*capacity; total++ {
		ring, err := New(capacity)
		require.NoError(t, err)

		for i := 1; i <= total; i++ {
			ring.Insert(NewEntry(LevelInfo, fmt.Sprintf("m%d", i)))
		}

		entries := ring.All()
		want := min(total, capacity)
		require.Len(t, entries, want, "after %d inserts", total)
		for i, entry := range entries {
			assert.Equal(t, fmt.Sprintf("m%d", total-want+1+i), entry.Message)
		}
	}
}

func TestClearEmptiesTheRing(t *testing.T) {
	ring, err := New(3)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		ring.Insert(NewEntry(LevelError, "boom"))
	}
	require.True(t, ring.IsFull())

	ring.Clear()

	assert.Empty(t, ring.All())
	assert.Equal(t, 0, ring.Len())
	assert.True(t, ring.IsEmpty())
	assert.False(t, ring.IsFull())

	// The ring stays usable after a clear.
	ring.Insert(NewEntry(LevelInfo, "fresh"))
	entries := ring.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].Message)
}

func TestCapacityIsFixed(t *testing.T) {
	ring, err := New(2)
	require.NoError(t, err)
	assert.Equal(t, 2, ring.Capacity())

	for i := 0; i < 10; i++ {
		ring.Insert(NewEntry(LevelInfo, "x"))
	}
	assert.Equal(t, 2, ring.Capacity())
	assert.Equal(t, 2, ring.Len())
}
