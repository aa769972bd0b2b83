package slab

import (
	"sync/atomic"

	nebcell "github.com/shisoft/Nebuchadnezzar/pkg/cell"
)

// ArchiveFunc persists a dead segment's live prefix before it is recycled.
// pkg/backup.Archive satisfies this signature; Cleaner depends only on
// the function type so pkg/slab never has to import pkg/backup (which
// itself imports pkg/slab).
type ArchiveFunc func(*Segment) (bool, error)

// Cleaner is the background compactor: it reclaims fragments by moving
// trailing live cells into them, and archives+recycles segments that are
// wholly dead.
type Cleaner struct {
	store   *Store
	archive ArchiveFunc

	// maxMoveRetries bounds how many times the cleaner retries a single
	// fragment's move after losing a hash-address race.
	maxMoveRetries int
}

// NewCleaner builds a cleaner bound to store. archive may be nil, in
// which case dead segments are recycled without ever being persisted;
// archival is opportunistic and only happens when a backup directory is
// configured.
func NewCleaner(store *Store, archive ArchiveFunc) *Cleaner {
	return &Cleaner{store: store, archive: archive, maxMoveRetries: 100}
}

// RunOnce performs one compaction pass over every segment of every chunk,
// returning the number of bytes reclaimed.
func (cl *Cleaner) RunOnce() int {
	reclaimed := 0
	for _, chunk := range cl.store.chunks {
		for segIdx, seg := range chunk.Segments {
			reclaimed += cl.compactSegment(chunk, uint16(segIdx), seg)
			cl.maybeArchiveAndReset(seg)
		}
	}
	return reclaimed
}

// compactSegment runs the compaction pass: iterate
// fragments by ascending position, coalescing adjacent fragments, and
// moving a cell that sits immediately after a fragment into the
// fragment's slot, advancing the fragment forward by the cell's size.
// When the fragment reaches the append header, the header is rewound to
// the fragment's address.
func (cl *Cleaner) compactSegment(chunk *Chunk, segIdx uint16, seg *Segment) int {
	reclaimed := 0
	for {
		frags := seg.Fragments()
		if len(frags) == 0 {
			return reclaimed
		}
		frag := frags[0]
		if len(frags) > 1 && frag.Addr+frag.Size == frags[1].Addr {
			// Adjacent fragments coalesce without touching any bytes.
			seg.removeFragment(frags[1].Addr)
			seg.shrinkFragment(frag.Addr, frag.Addr, frag.Size+frags[1].Size)
			continue
		}
		moved, ok := cl.tryAdvanceFragment(chunk, segIdx, seg, frag)
		if !ok {
			// Either nothing follows the fragment yet, or we lost a race
			// past the retry budget; leave this fragment for next pass.
			return reclaimed
		}
		reclaimed += moved
	}
}

// tryAdvanceFragment attempts to move the entry immediately following
// frag into frag's slot, shrinking/advancing frag by the entry's framed
// size. It retries up to maxMoveRetries times if the entry's hash no
// longer maps to the address it observed.
func (cl *Cleaner) tryAdvanceFragment(chunk *Chunk, segIdx uint16, seg *Segment, frag Fragment) (int, bool) {
	followingAddr := frag.Addr + frag.Size
	if followingAddr >= seg.AppendOffset() {
		// Fragment reaches the append header: rewind it and drop the
		// fragment entirely.
		seg.Lock()
		if seg.AppendOffset() == followingAddr {
			seg.resetAppendTo(frag.Addr)
		}
		seg.Unlock()
		seg.removeFragment(frag.Addr)
		seg.reduceDeadSpace(frag.Size)
		return int(frag.Size), true
	}

	for attempt := 0; attempt < cl.maxMoveRetries; attempt++ {
		seg.RLock()
		buf := seg.Bytes()
		if followingAddr >= uint32(len(buf)) {
			seg.RUnlock()
			return 0, false
		}
		eh, n, err := nebcell.DecodeEntryHeader(buf[followingAddr:])
		if err != nil {
			seg.RUnlock()
			return 0, false
		}
		entrySize := uint32(n) + eh.ContentLength

		if eh.Type == nebcell.EntryTypeTombstone {
			// Dead tombstone entries coalesce into the fragment directly.
			seg.RUnlock()
			seg.shrinkFragment(frag.Addr, frag.Addr, frag.Size+entrySize)
			atomic.AddUint32(&seg.deadSpace, entrySize)
			return int(entrySize), true
		}

		body := buf[followingAddr+uint32(n) : followingAddr+entrySize]
		header := nebcell.DecodeHeader(body[:nebcell.HeaderSize])
		seg.RUnlock()

		curAddr, curSeg, _, ok := chunk.Index.Lookup(header.Hash)
		if !ok || curSeg != segIdx || curAddr != followingAddr {
			// The cell moved or was deleted since we read it; this
			// fragment no longer has a mover. Leave it for next pass.
			return 0, false
		}

		if cl.moveInto(chunk, segIdx, seg, frag, entrySize, header.Hash) {
			return int(entrySize), true
		}
		// Lost the race (hash moved between Lookup and CAS); retry.
	}
	return 0, false
}

// moveInto physically copies the entry that sits right after frag (at
// frag.Addr+frag.Size, entrySize bytes) down into frag's slot, then CASes
// the chunk index to point at the new address. The segment lock is
// dropped between planning and the move and only briefly reacquired for
// the memmove itself. On success, frag slides forward by entrySize: same
// total size, now sitting right after the moved cell.
func (cl *Cleaner) moveInto(chunk *Chunk, segIdx uint16, seg *Segment, frag Fragment, entrySize uint32, hash uint64) bool {
	src := frag.Addr + frag.Size
	dst := frag.Addr

	seg.Lock()
	buf := seg.Bytes()
	copy(buf[dst:dst+entrySize], buf[src:src+entrySize])
	seg.Unlock()

	if !chunk.Index.CAS(hash, segIdx, src, segIdx, dst) {
		// Someone updated/removed the cell while we moved its bytes; the
		// copy we just made is now garbage, but harmless; it will be
		// covered by this fragment slot again on the next pass.
		return false
	}
	seg.shrinkFragment(frag.Addr, dst+entrySize, frag.Size)
	return true
}

// maybeArchiveAndReset runs the archive-and-reset pass: if a segment is
// wholly dead, archive it (if a backup path is configured) and recycle it
// for reuse.
func (cl *Cleaner) maybeArchiveAndReset(seg *Segment) {
	if seg.AppendOffset() == 0 {
		return
	}
	if seg.LivingRate() > 0 {
		return
	}
	if cl.archive != nil {
		// archive() owns the archived flag itself (MarkArchived/
		// UnmarkArchived) so it can back out of a failed write; Recycle
		// only needs to run once the bytes are safely on disk.
		if _, err := cl.archive(seg); err != nil {
			return
		}
		seg.Recycle()
		return
	}
	if seg.MarkArchived() {
		seg.Recycle()
	}
}
