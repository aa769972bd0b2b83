package txn

import (
	"errors"
	"sync"

	nebcell "github.com/shisoft/Nebuchadnezzar/pkg/cell"
	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
	"github.com/shisoft/Nebuchadnezzar/pkg/slab"
)

// opKind names a staged write in a transaction's workspace.
type opKind int

const (
	opWrite opKind = iota
	opUpdate
	opRemove
)

type stagedOp struct {
	kind opKind
	id   ids.Id
	cell nebcell.Cell
}

// DataSite is a per-partition participant in the two-phase commit
// protocol: it owns a slice of the cell store and a lock table that keeps
// a prepared transaction's writes from racing a concurrent one.
// In-process, every DataSite shares the same *slab.Store; a real
// deployment would instead give each site its own store reached over RPC
// (see pkg/rpc), which is why the method set below is shaped like RPC
// calls rather than direct store passthroughs.
type DataSite struct {
	store *slab.Store

	mu    sync.Mutex
	locks map[uint64]TxnId // cell hash -> holder, held from prepare to commit/abort
}

// NewDataSite builds a DataSite backed by store.
func NewDataSite(store *slab.Store) *DataSite {
	return &DataSite{store: store, locks: make(map[uint64]TxnId)}
}

// Read returns the live cell for id, for the manager's read-set tracking.
func (d *DataSite) Read(id ids.Id) (nebcell.Cell, error) {
	return d.store.ReadCell(id)
}

// HeadVersion returns the current committed version of id, or
// ErrCellDoesNotExist if no live cell exists.
func (d *DataSite) HeadVersion(id ids.Id) (uint64, error) {
	h, err := d.store.HeadCell(id)
	if err != nil {
		return 0, err
	}
	return h.Version, nil
}

func hashOf(id ids.Id) uint64 { return nebcell.HashId(id) }

// tryLock acquires the per-cell lock for id on behalf of tid. Returns
// false if another transaction already holds it.
func (d *DataSite) tryLock(tid TxnId, id ids.Id) bool {
	h := hashOf(id)
	if holder, held := d.locks[h]; held && holder != tid {
		return false
	}
	d.locks[h] = tid
	return true
}

func (d *DataSite) unlock(tid TxnId, id ids.Id) {
	h := hashOf(id)
	if holder, held := d.locks[h]; held && holder == tid {
		delete(d.locks, h)
	}
}

// Prepare revalidates reads and locks writes for tid. reads maps an id to
// the version the coordinator observed when it performed the read; writes
// is every staged mutation routed to this site. On any failure, every lock
// this call acquired is released before returning PrepareNotRealizable, so
// the caller never has to special-case partial success.
func (d *DataSite) Prepare(tid TxnId, reads map[ids.Id]uint64, writes []*stagedOp) PrepareVote {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, wantVersion := range reads {
		cur, err := d.store.HeadCell(id)
		switch {
		case err != nil && !errors.Is(err, nebcell.ErrCellDoesNotExist):
			return PrepareDataSiteError
		case err != nil:
			// Cell no longer exists; any non-zero observed version is stale.
			if wantVersion != 0 {
				return PrepareNotRealizable
			}
		case cur.Version != wantVersion:
			return PrepareNotRealizable
		}
	}

	acquired := make([]ids.Id, 0, len(writes))
	for _, op := range writes {
		if !d.tryLock(tid, op.id) {
			for _, id := range acquired {
				d.unlock(tid, id)
			}
			return PrepareNotRealizable
		}
		acquired = append(acquired, op.id)
	}
	return PrepareSuccess
}

// Commit applies every staged write routed to this site and releases the
// locks Prepare acquired for tid.
func (d *DataSite) Commit(tid TxnId, writes []*stagedOp) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, op := range writes {
		c := op.cell
		var err error
		switch op.kind {
		case opWrite:
			err = d.store.WriteCell(&c)
		case opUpdate:
			if _, headErr := d.store.HeadCell(op.id); errors.Is(headErr, nebcell.ErrCellDoesNotExist) {
				err = d.store.WriteCell(&c)
			} else {
				err = d.store.UpdateCell(&c)
			}
		case opRemove:
			err = d.store.RemoveCell(op.id)
			if errors.Is(err, nebcell.ErrCellDoesNotExist) {
				err = nil // already gone; remove is idempotent at commit time
			}
		}
		if err != nil {
			d.unlock(tid, op.id)
			return err
		}
		d.unlock(tid, op.id)
	}
	return nil
}

// Abort releases every lock tid holds at this site, for the ids it
// touched (reads need no unlocking; only prepared writes are locked).
func (d *DataSite) Abort(tid TxnId, writes []*stagedOp) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, op := range writes {
		d.unlock(tid, op.id)
	}
}
