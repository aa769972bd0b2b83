package lsm

import (
	"github.com/shisoft/Nebuchadnezzar/pkg/btree"
)

// Level widths: LM is one B+Tree leaf, each deeper level's page holds ten
// times the previous level's.
const (
	LevelM  = btree.NumKeys
	Level1  = 240
	Level2  = 2400
	Level3  = 24000
)

// Engine is the two-tier index: a mutable B+Tree memtable (level M) plus
// a chain of immutable levels, merged downward by a background sentinel.
type Engine struct {
	memtable *btree.Tree
	levels   []*Level
}

// NewEngine builds a fresh engine with the standard LM/L1/L2/L3 level
// chain.
func NewEngine() *Engine {
	return &Engine{
		memtable: btree.New(),
		levels:   []*Level{NewLevel(Level1), NewLevel(Level2), NewLevel(Level3)},
	}
}

// Insert adds key to the memtable.
func (e *Engine) Insert(key btree.EntryKey) error {
	return e.memtable.Insert(key)
}

// Delete marks key as deleted across the memtable and every level,
// returning whether it was found anywhere.
func (e *Engine) Delete(key btree.EntryKey) bool {
	memDeleted := e.memtable.Remove(key) == nil
	levelsDeleted := false
	for _, l := range e.levels {
		if l.MarkDeleted(key) {
			levelsDeleted = true
		}
	}
	return memDeleted || levelsDeleted
}

// Seek builds a merging cursor over the memtable and every level,
// positioned at the first key >= key (Forward) or <= key (Backward).
func (e *Engine) Seek(key btree.EntryKey, ord btree.Ordering) *Cursor {
	c := &Cursor{ord: ord, mem: e.memtable.Seek(key, ord)}
	for _, l := range e.levels {
		c.levels = append(c.levels, newFlatCursor(l.snapshotSortedKeys(), ord, key))
	}
	return c
}

// Levels exposes the level chain, for the sentinel and statistics
// builder.
func (e *Engine) Levels() []*Level { return e.levels }

// Memtable exposes the level-M B+Tree directly, for callers (e.g.
// statistics) that need to walk it.
func (e *Engine) Memtable() *btree.Tree { return e.memtable }
