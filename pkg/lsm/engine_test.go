package lsm

import (
	"fmt"
	"testing"

	"github.com/shisoft/Nebuchadnezzar/pkg/btree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ekey(n int) btree.EntryKey {
	return btree.EntryKey(fmt.Sprintf("%08d", n))
}

func TestEngineInsertSeekOrdering(t *testing.T) {
	e := NewEngine()
	const n = 2000
	order := []int{}
	for i := 0; i < n; i++ {
		order = append(order, i)
	}
	// Insert in a shuffled-ish pattern so memtable/level churn overlaps.
	for i := 0; i < n; i++ {
		idx := (i * 37) % n
		require.NoError(t, e.Insert(ekey(order[idx])))
	}
	for i := 0; i < 50; i++ {
		e.RunOnce()
	}

	c := e.Seek(ekey(0), btree.Forward)
	prev := -1
	count := 0
	for c.Valid() {
		var v int
		_, err := fmt.Sscanf(string(c.Key()), "%d", &v)
		require.NoError(t, err)
		assert.Greater(t, v, prev)
		prev = v
		count++
		c.Next()
	}
	assert.Equal(t, n, count)
}

func TestEngineBackwardSeekYieldsDescendingRun(t *testing.T) {
	e := NewEngine()
	const n = 600
	for i := 0; i < n; i++ {
		require.NoError(t, e.Insert(ekey((i*37)%n)))
	}
	for i := 0; i < 20; i++ {
		e.RunOnce()
	}

	c := e.Seek(ekey(n-1), btree.Backward)
	want := n - 1
	for c.Valid() {
		var v int
		_, err := fmt.Sscanf(string(c.Key()), "%d", &v)
		require.NoError(t, err)
		assert.Equal(t, want, v)
		want--
		c.Next()
	}
	assert.Equal(t, -1, want)
}

func TestEngineDeleteHidesKey(t *testing.T) {
	e := NewEngine()
	for i := 0; i < 500; i++ {
		require.NoError(t, e.Insert(ekey(i)))
	}
	for i := 0; i < 50; i++ {
		e.RunOnce()
	}
	assert.True(t, e.Delete(ekey(10)))

	c := e.Seek(ekey(0), btree.Forward)
	for c.Valid() {
		assert.NotEqual(t, string(ekey(10)), string(c.Key()))
		c.Next()
	}
}

func TestSentinelMergesMemtableDownward(t *testing.T) {
	e := NewEngine()
	for i := 0; i < LevelPageDiffMultiplier*LevelM+10; i++ {
		require.NoError(t, e.Insert(ekey(i)))
	}
	e.RunOnce()
	assert.Greater(t, e.levels[0].Count(), 0)
	assert.Less(t, e.memtable.Len(), LevelPageDiffMultiplier*LevelM+10)
}

func TestPlacementSplit(t *testing.T) {
	p := Placement{Lower: ekey(0), Upper: ekey(1000)}
	assert.True(t, p.Contains(ekey(500)))
	assert.False(t, p.Contains(ekey(1000)))

	lower, upper := Split(p, ekey(500), p.TreeId)
	assert.True(t, lower.Contains(ekey(100)))
	assert.False(t, lower.Contains(ekey(500)))
	assert.True(t, upper.Contains(ekey(500)))
}
