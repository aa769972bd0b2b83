package btree

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(n int) EntryKey {
	return EntryKey(fmt.Sprintf("%08d", n))
}

func TestInsertGetRoundTrip(t *testing.T) {
	tr := New()
	for i := 0; i < 500; i++ {
		require.NoError(t, tr.Insert(key(i)))
	}
	for i := 0; i < 500; i++ {
		assert.True(t, tr.Get(key(i)), "missing key %d", i)
	}
	assert.False(t, tr.Get(key(9999)))
	assert.Equal(t, 500, tr.Len())
}

func TestInsertDuplicateRejected(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Insert(key(1)))
	assert.ErrorIs(t, tr.Insert(key(1)), ErrDuplicateKey)
}

func TestRemove(t *testing.T) {
	tr := New()
	for i := 0; i < 200; i++ {
		require.NoError(t, tr.Insert(key(i)))
	}
	for i := 0; i < 200; i += 2 {
		require.NoError(t, tr.Remove(key(i)))
	}
	assert.ErrorIs(t, tr.Remove(key(0)), ErrNotFound)
	for i := 0; i < 200; i++ {
		want := i%2 == 1
		assert.Equal(t, want, tr.Get(key(i)), "key %d", i)
	}
}

func TestCursorForwardOrdering(t *testing.T) {
	tr := New()
	inserted := []int{5, 1, 9, 3, 7, 2, 8, 4, 6, 0}
	for _, v := range inserted {
		require.NoError(t, tr.Insert(key(v)))
	}
	c := tr.SeekFirst()
	var got []string
	for c.Valid() {
		got = append(got, string(c.Key()))
		c.Next()
	}
	sort.Ints(inserted)
	var want []string
	for _, v := range inserted {
		want = append(want, string(key(v)))
	}
	assert.Equal(t, want, got)
}

func TestSeekBackward(t *testing.T) {
	tr := New()
	for i := 0; i < 50; i += 2 {
		require.NoError(t, tr.Insert(key(i)))
	}
	c := tr.Seek(key(25), Backward)
	require.True(t, c.Valid())
	assert.Equal(t, key(24), c.Key())
}

func TestDumpProducesLayeredOutput(t *testing.T) {
	tr := New()
	for i := 0; i < 300; i++ {
		require.NoError(t, tr.Insert(key(i)))
	}
	var buf bytes.Buffer
	require.NoError(t, tr.Dump(&buf))
	assert.Contains(t, buf.String(), "external")
}

func TestReconstructFromLeafChain(t *testing.T) {
	tr := New()
	for i := 0; i < 400; i++ {
		require.NoError(t, tr.Insert(key(i)))
	}
	leaves := []*Node{tr.firstLeaf()}
	for n := leaves[0].next; n != nil; n = n.next {
		leaves = append(leaves, n)
	}

	rebuilt := Reconstruct(leaves)
	for i := 0; i < 400; i++ {
		assert.True(t, rebuilt.Get(key(i)), "missing key %d after reconstruct", i)
	}
}

func TestConcurrentInsertGet(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = tr.Insert(key(base*200 + i))
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 1600, tr.Len())
}

// TestOrderingInvariant is a property test: for any sequence of distinct
// keys inserted in any order, a forward cursor walk must yield them in
// strictly ascending order (the B+Tree's core invariant).
func TestOrderingInvariant(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property-based test in short mode")
	}
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)
	properties.Property("forward cursor walk is strictly ascending", prop.ForAll(
		func(values []int) bool {
			tr := New()
			seen := map[int]bool{}
			for _, v := range values {
				if seen[v] {
					continue
				}
				seen[v] = true
				if err := tr.Insert(key(v)); err != nil {
					return false
				}
			}
			c := tr.SeekFirst()
			var prev EntryKey
			first := true
			for c.Valid() {
				cur := c.Key()
				if !first && Compare(prev, cur) >= 0 {
					return false
				}
				prev = cur
				first = false
				c.Next()
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 2000)),
	))
	properties.TestingRun(t)
}
