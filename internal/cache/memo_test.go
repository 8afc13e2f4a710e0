package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemo_PutGet(t *testing.T) {
	m, err := NewMemo[int](8, 0)
	require.NoError(t, err)

	_, ok := m.Get("a")
	assert.False(t, ok)

	m.Put("a", 1)
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	hits, misses := m.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestMemo_PutSupersedes(t *testing.T) {
	m, err := NewMemo[string](8, 0)
	require.NoError(t, err)

	m.Put("k", "old")
	m.Put("k", "new")
	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestMemo_TTLExpiry(t *testing.T) {
	m, err := NewMemo[int](8, 20*time.Millisecond)
	require.NoError(t, err)

	m.Put("k", 7)
	_, ok := m.Get("k")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = m.Get("k")
	assert.False(t, ok)
}

func TestMemo_Invalidate(t *testing.T) {
	m, err := NewMemo[int](8, 0)
	require.NoError(t, err)

	m.Put("k", 7)
	m.Invalidate("k")
	_, ok := m.Get("k")
	assert.False(t, ok)
}

func TestMemo_EvictsAtCapacity(t *testing.T) {
	m, err := NewMemo[int](2, 0)
	require.NoError(t, err)

	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3)

	_, ok := m.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	v, ok := m.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}
