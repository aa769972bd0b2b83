// Package lsm implements Neb's LSM level-merge engine: an in-memory
// mutable B+Tree memtable (level M) backed by immutable, fixed-width
// sorted levels L1...Ln, merged downward by a background sentinel.
package lsm

import (
	"sort"
	"sync"

	"github.com/shisoft/Nebuchadnezzar/pkg/btree"
)

// LevelPageDiffMultiplier is how many pages of one level get folded into
// a single page of the next, and also the page-count threshold that
// triggers a merge.
const LevelPageDiffMultiplier = 10

// Page is an immutable, already-sorted, deduplicated run of entry keys,
// matching one level's fixed page width.
type Page struct {
	keys []btree.EntryKey
}

// Keys exposes the page's sorted key run, read-only.
func (p *Page) Keys() []btree.EntryKey { return p.keys }

// Level is one immutable LSM level: a FIFO of pages plus a tombstone set
// for deletions not yet compacted away, both guarded by a single lock.
type Level struct {
	Width int // fixed page width for this level (e.g. 240, 2400, 24000)

	mu         sync.RWMutex
	pages      []*Page
	tombstones map[string]struct{}
}

// NewLevel builds an empty level of the given fixed page width.
func NewLevel(width int) *Level {
	return &Level{Width: width, tombstones: make(map[string]struct{})}
}

// AddPage appends a new page built from merged keys, FIFO-ordered so the
// oldest page is always at the front.
func (l *Level) AddPage(keys []btree.EntryKey) {
	if len(keys) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages = append(l.pages, &Page{keys: keys})
}

// Count returns the total number of keys held across all of this level's
// pages. The sentinel decides overflow by PageCount, not by this count.
func (l *Level) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, p := range l.pages {
		total += len(p.keys)
	}
	return total
}

// PageCount returns the number of pages currently held.
func (l *Level) PageCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pages)
}

// MarkDeleted records key as deleted in this level's tombstone set,
// returning whether the key was actually present in one of the level's
// pages. Deletion is purely logical until a later merge drops the key.
func (l *Level) MarkDeleted(key btree.EntryKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tombstones[string(key)] = struct{}{}
	for _, p := range l.pages {
		if containsKey(p.keys, key) {
			return true
		}
	}
	return false
}

func containsKey(keys []btree.EntryKey, key btree.EntryKey) bool {
	i := sort.Search(len(keys), func(i int) bool { return btree.Compare(keys[i], key) >= 0 })
	return i < len(keys) && btree.Compare(keys[i], key) == 0
}

// DrainOldestPages removes the n oldest pages (or fewer, if the level
// holds fewer than n), merges their keys into one sorted, deduplicated,
// tombstone-pruned run, and consumes any tombstone entries that matched a
// pruned key.
func (l *Level) DrainOldestPages(n int) []btree.EntryKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pages) == 0 {
		return nil
	}
	if n > len(l.pages) {
		n = len(l.pages)
	}
	taken := l.pages[:n]
	l.pages = l.pages[n:]

	merged := mergeSortedPageKeys(taken)
	out := merged[:0:0]
	for _, k := range merged {
		ks := string(k)
		if _, dead := l.tombstones[ks]; dead {
			delete(l.tombstones, ks)
			continue
		}
		out = append(out, k)
	}
	return out
}

// mergeSortedPageKeys k-way merges already-sorted page key runs into one
// sorted, deduplicated slice.
func mergeSortedPageKeys(pages []*Page) []btree.EntryKey {
	idx := make([]int, len(pages))
	var out []btree.EntryKey
	for {
		minI := -1
		for i, p := range pages {
			if idx[i] >= len(p.keys) {
				continue
			}
			if minI == -1 || btree.Compare(p.keys[idx[i]], pages[minI].keys[idx[minI]]) < 0 {
				minI = i
			}
		}
		if minI == -1 {
			return out
		}
		k := pages[minI].keys[idx[minI]]
		if len(out) == 0 || btree.Compare(out[len(out)-1], k) != 0 {
			out = append(out, k)
		}
		idx[minI]++
	}
}

// snapshotSortedKeys returns a flat, sorted, deduplicated, tombstone-
// pruned view of every key currently in the level, for cursor
// construction.
func (l *Level) snapshotSortedKeys() []btree.EntryKey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	merged := mergeSortedPageKeys(l.pages)
	out := merged[:0:0]
	for _, k := range merged {
		if _, dead := l.tombstones[string(k)]; dead {
			continue
		}
		out = append(out, k)
	}
	return out
}
