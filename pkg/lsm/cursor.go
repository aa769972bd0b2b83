package lsm

import "github.com/shisoft/Nebuchadnezzar/pkg/btree"

// flatCursor walks a pre-sorted, already-deduplicated key slice.
type flatCursor struct {
	keys []btree.EntryKey
	i    int
	ord  btree.Ordering
}

func newFlatCursor(keys []btree.EntryKey, ord btree.Ordering, seek btree.EntryKey) *flatCursor {
	c := &flatCursor{keys: keys, ord: ord}
	if ord == btree.Forward {
		c.i = firstGE(keys, seek)
	} else {
		c.i = lastLE(keys, seek)
	}
	return c
}

func firstGE(keys []btree.EntryKey, key btree.EntryKey) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if btree.Compare(keys[mid], key) >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func lastLE(keys []btree.EntryKey, key btree.EntryKey) int {
	i := firstGE(keys, key)
	if i < len(keys) && btree.Compare(keys[i], key) == 0 {
		return i
	}
	return i - 1
}

func (c *flatCursor) valid() bool { return c.i >= 0 && c.i < len(c.keys) }

func (c *flatCursor) current() btree.EntryKey {
	if !c.valid() {
		return nil
	}
	return c.keys[c.i]
}

func (c *flatCursor) advance() {
	if c.ord == btree.Forward {
		c.i++
	} else {
		c.i--
	}
}

// Cursor merges the memtable's live cursor with a flat snapshot cursor
// per level, always yielding the lexicographic extreme (minimum for
// Forward, maximum for Backward) across all constituent cursors; only
// cursors sitting on that extreme advance.
type Cursor struct {
	ord      btree.Ordering
	mem      *btree.RTCursor
	levels   []*flatCursor
}

func (c *Cursor) memValid() bool { return c.mem != nil && c.mem.Valid() }

// Valid reports whether the cursor currently sits on a key.
func (c *Cursor) Valid() bool {
	if c.memValid() {
		return true
	}
	for _, lc := range c.levels {
		if lc.valid() {
			return true
		}
	}
	return false
}

// Key returns the current extreme key across all constituent cursors.
func (c *Cursor) Key() btree.EntryKey {
	var best btree.EntryKey
	have := false
	consider := func(k btree.EntryKey) {
		if k == nil {
			return
		}
		if !have {
			best, have = k, true
			return
		}
		cmp := btree.Compare(k, best)
		if (c.ord == btree.Forward && cmp < 0) || (c.ord == btree.Backward && cmp > 0) {
			best = k
		}
	}
	if c.memValid() {
		consider(c.mem.Key())
	}
	for _, lc := range c.levels {
		consider(lc.current())
	}
	return best
}

// Next advances whichever constituent cursor currently holds the extreme
// key.
func (c *Cursor) Next() {
	best := c.Key()
	if best == nil {
		return
	}
	if c.memValid() && btree.Compare(c.mem.Key(), best) == 0 {
		c.mem.Next()
	}
	for _, lc := range c.levels {
		if lc.valid() && btree.Compare(lc.current(), best) == 0 {
			lc.advance()
		}
	}
}
