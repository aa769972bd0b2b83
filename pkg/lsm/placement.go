package lsm

import (
	"github.com/shisoft/Nebuchadnezzar/pkg/btree"
	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
)

// Placement is a range assignment for one LSM tree instance: the half
// open key interval [Lower, Upper) it owns, identified by TreeId. A
// ring/placement layer assigns these records to servers; only the record
// shape lives here.
type Placement struct {
	TreeId ids.Id
	Lower  btree.EntryKey
	Upper  btree.EntryKey
}

// Contains reports whether key falls within [Lower, Upper). A nil Upper
// means unbounded above.
func (p Placement) Contains(key btree.EntryKey) bool {
	if btree.Compare(key, p.Lower) < 0 {
		return false
	}
	if p.Upper == nil {
		return true
	}
	return btree.Compare(key, p.Upper) < 0
}

// Split divides p at pivot into two adjacent placements with a new tree
// id for the upper half, used when a tree's owned range grows too large
// for one engine instance to merge efficiently.
func Split(p Placement, pivot btree.EntryKey, newUpperId ids.Id) (lower, upper Placement) {
	lower = Placement{TreeId: p.TreeId, Lower: p.Lower, Upper: pivot}
	upper = Placement{TreeId: newUpperId, Lower: pivot, Upper: p.Upper}
	return lower, upper
}
