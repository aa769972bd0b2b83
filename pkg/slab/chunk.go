package slab

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// indexEntry is the chunk index's value type: a cell's current address plus
// a per-hash guard so concurrent writers to the same hash serialize
// without blocking unrelated hashes.
type indexEntry struct {
	mu      sync.RWMutex
	addr    uint32
	segment uint16
	size    uint32
	live    bool
}

// ChunkIndex is a concurrent hash map from cell hash to in-chunk address.
// It holds at most one live pointer per hash; updates move the pointer to
// a new address and mark the old range as a fragment.
type ChunkIndex struct {
	shardCount uint32
	shards     []*indexShard
}

type indexShard struct {
	mu      sync.RWMutex
	entries map[uint64]*indexEntry
}

// NewChunkIndex creates an index sharded across shardCount buckets to
// reduce global lock contention; shardCount should be a power of two.
func NewChunkIndex(shardCount uint32) *ChunkIndex {
	if shardCount == 0 {
		shardCount = 64
	}
	ci := &ChunkIndex{shardCount: shardCount, shards: make([]*indexShard, shardCount)}
	for i := range ci.shards {
		ci.shards[i] = &indexShard{entries: make(map[uint64]*indexEntry)}
	}
	return ci
}

func (ci *ChunkIndex) shardFor(hash uint64) *indexShard {
	return ci.shards[hash&uint64(ci.shardCount-1)]
}

// Lookup returns the current address for hash, or false if there is no
// live entry.
func (ci *ChunkIndex) Lookup(hash uint64) (addr uint32, segment uint16, size uint32, ok bool) {
	sh := ci.shardFor(hash)
	sh.mu.RLock()
	e, found := sh.entries[hash]
	sh.mu.RUnlock()
	if !found {
		return 0, 0, 0, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.live {
		return 0, 0, 0, false
	}
	return e.addr, e.segment, e.size, true
}

// ErrAlreadyLive is returned by Insert when hash already maps to a live
// address.
var ErrAlreadyLive = fmt.Errorf("slab: hash already live")

// Insert publishes a brand-new (hash -> address) mapping via
// compare-and-set; it fails with ErrAlreadyLive if the hash already has a
// live entry, which Store.WriteCell surfaces as ErrCellAlreadyExisted.
func (ci *ChunkIndex) Insert(hash uint64, segment uint16, addr, size uint32) error {
	sh := ci.shardFor(hash)
	sh.mu.Lock()
	e, found := sh.entries[hash]
	if !found {
		e = &indexEntry{}
		sh.entries[hash] = e
	}
	sh.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live {
		return ErrAlreadyLive
	}
	e.addr, e.segment, e.size, e.live = addr, segment, size, true
	return nil
}

// ErrNotLive is returned by Update/Remove when hash has no live entry.
var ErrNotLive = fmt.Errorf("slab: hash not live")

// Update swaps the live address for hash under the entry's write guard,
// returning the previous (segment, addr, size) so the caller can emit a
// tombstone/fragment for it. Fails with ErrNotLive if hash is not
// currently live.
func (ci *ChunkIndex) Update(hash uint64, newSegment uint16, newAddr, newSize uint32) (oldSegment uint16, oldAddr, oldSize uint32, err error) {
	sh := ci.shardFor(hash)
	sh.mu.RLock()
	e, found := sh.entries[hash]
	sh.mu.RUnlock()
	if !found {
		return 0, 0, 0, ErrNotLive
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.live {
		return 0, 0, 0, ErrNotLive
	}
	oldSegment, oldAddr, oldSize = e.segment, e.addr, e.size
	e.segment, e.addr, e.size = newSegment, newAddr, newSize
	return oldSegment, oldAddr, oldSize, nil
}

// Remove clears the live entry for hash, returning its last address so
// the caller can emit a covering tombstone.
func (ci *ChunkIndex) Remove(hash uint64) (segment uint16, addr, size uint32, err error) {
	sh := ci.shardFor(hash)
	sh.mu.RLock()
	e, found := sh.entries[hash]
	sh.mu.RUnlock()
	if !found {
		return 0, 0, 0, ErrNotLive
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.live {
		return 0, 0, 0, ErrNotLive
	}
	segment, addr, size = e.segment, e.addr, e.size
	e.live = false
	return segment, addr, size, nil
}

// CAS atomically replaces the address for hash only if it currently
// equals expectSegment/expectAddr; used by the cleaner to verify a cell's
// hash still maps to the address it planned to move.
func (ci *ChunkIndex) CAS(hash uint64, expectSegment uint16, expectAddr uint32, newSegment uint16, newAddr uint32) bool {
	sh := ci.shardFor(hash)
	sh.mu.RLock()
	e, found := sh.entries[hash]
	sh.mu.RUnlock()
	if !found {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.live || e.segment != expectSegment || e.addr != expectAddr {
		return false
	}
	e.segment, e.addr = newSegment, newAddr
	return true
}

// IndexSnapshot is one live entry in a ChunkIndex, captured for a
// read-only scan (e.g. the statistics builder).
type IndexSnapshot struct {
	Hash    uint64
	Segment uint16
	Addr    uint32
	Size    uint32
}

// Snapshot returns every currently-live entry across all shards. It takes
// each shard's lock only long enough to copy its entries, so it does not
// block writers for the whole scan.
func (ci *ChunkIndex) Snapshot() []IndexSnapshot {
	var out []IndexSnapshot
	for _, sh := range ci.shards {
		sh.mu.RLock()
		entries := make([]*indexEntry, 0, len(sh.entries))
		hashes := make([]uint64, 0, len(sh.entries))
		for h, e := range sh.entries {
			entries = append(entries, e)
			hashes = append(hashes, h)
		}
		sh.mu.RUnlock()
		for i, e := range entries {
			e.mu.RLock()
			if e.live {
				out = append(out, IndexSnapshot{Hash: hashes[i], Segment: e.segment, Addr: e.addr, Size: e.size})
			}
			e.mu.RUnlock()
		}
	}
	return out
}

// Chunk owns a set of segments and round-robins allocation across them. A
// server holds ServerConfig.ChunkCount of these.
type Chunk struct {
	Id       uint64
	Index    *ChunkIndex
	Segments []*Segment

	cursor uint32 // atomic round-robin segment cursor
}

// NewChunk creates a chunk with segmentCount segments of segmentSize bytes
// each.
func NewChunk(id uint64, segmentCount int, segmentSize int, backupDir string) *Chunk {
	c := &Chunk{Id: id, Index: NewChunkIndex(256)}
	for i := 0; i < segmentCount; i++ {
		path := ""
		if backupDir != "" {
			path = fmt.Sprintf("%s/chunk-%d", backupDir, id)
		}
		c.Segments = append(c.Segments, NewSegment(uint64(i), segmentSize, path))
	}
	return c
}

// Acquire reserves size bytes somewhere in the chunk, trying up to
// 2*len(Segments) segments starting from the round-robin cursor before
// declaring the chunk full.
func (c *Chunk) Acquire(size uint32) (segIdx uint16, addr uint32, ok bool) {
	n := len(c.Segments)
	if n == 0 {
		return 0, 0, false
	}
	maxTries := 2 * n
	start := int(atomic.AddUint32(&c.cursor, 1)) % n
	for i := 0; i < maxTries; i++ {
		idx := (start + i) % n
		seg := c.Segments[idx]
		seg.RLock()
		a, got := seg.TryAcquire(size)
		if got {
			return uint16(idx), a, true
		}
		seg.RUnlock()
	}
	return 0, 0, false
}

// ReleaseAfterWrite unlocks the read guard a successful Acquire left held
// for segIdx, once the caller has finished writing the reserved bytes.
func (c *Chunk) ReleaseAfterWrite(segIdx uint16) {
	c.Segments[segIdx].RUnlock()
}
