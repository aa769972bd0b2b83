package slab

import (
	"fmt"
	"sync/atomic"
	"time"

	nebcell "github.com/shisoft/Nebuchadnezzar/pkg/cell"
	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
	"github.com/shisoft/Nebuchadnezzar/pkg/schema"
)

// Store is the cell store: a set of chunks selected by Id.Higher, backed
// by a schema registry that drives (de)serialization.
type Store struct {
	chunks    []*Chunk
	schemas   *schema.Registry
	versionCt uint64 // atomic, monotonic version stamp for writes
}

// NewStore builds a store with chunkCount chunks, each with segmentCount
// segments of segmentSize bytes, registered against the given schema
// registry.
func NewStore(reg *schema.Registry, chunkCount, segmentCount, segmentSize int, backupDir string) *Store {
	s := &Store{schemas: reg}
	for i := 0; i < chunkCount; i++ {
		s.chunks = append(s.chunks, NewChunk(uint64(i), segmentCount, segmentSize, backupDir))
	}
	return s
}

func (s *Store) chunkFor(id ids.Id) *Chunk {
	return s.chunks[id.Higher%uint64(len(s.chunks))]
}

func (s *Store) nextVersion() uint64 {
	return atomic.AddUint64(&s.versionCt, 1)
}

// readEntry decodes the cell living at segment/addr.
func (s *Store) readEntry(chunk *Chunk, segIdx uint16, addr uint32) (nebcell.Cell, error) {
	seg := chunk.Segments[segIdx]
	seg.RLock()
	defer seg.RUnlock()
	buf := seg.Bytes()
	if addr >= uint32(len(buf)) {
		return nebcell.Cell{}, fmt.Errorf("slab: %w: address out of range", nebcell.ErrCorruptedCell)
	}
	eh, n, err := nebcell.DecodeEntryHeader(buf[addr:])
	if err != nil {
		return nebcell.Cell{}, err
	}
	if eh.Type != nebcell.EntryTypeCell {
		return nebcell.Cell{}, fmt.Errorf("slab: %w: address points at a tombstone", nebcell.ErrCorruptedCell)
	}
	body := buf[addr+uint32(n) : addr+uint32(n)+eh.ContentLength]
	header := nebcell.DecodeHeader(body[:nebcell.HeaderSize])
	sch, err := s.schemas.Get(header.Schema)
	if err != nil {
		return nebcell.Cell{}, err
	}
	fixed := body[nebcell.HeaderSize : nebcell.HeaderSize+sch.StaticBound]
	tail := body[nebcell.HeaderSize+sch.StaticBound:]
	fields, _, err := sch.Decode(fixed, tail, nil)
	if err != nil {
		return nebcell.Cell{}, err
	}
	return nebcell.Cell{Header: header, Body: fields}, nil
}

// ReadAt decodes the cell living at a specific (chunk, segment, address),
// exposed for read-only scans that already hold an index snapshot (e.g.
// the statistics builder) rather than a cell id.
func (s *Store) ReadAt(chunk *Chunk, segIdx uint16, addr uint32) (nebcell.Cell, error) {
	return s.readEntry(chunk, segIdx, addr)
}

// ReadCell locates id's chunk, looks up its live address, and decodes the
// full cell.
func (s *Store) ReadCell(id ids.Id) (nebcell.Cell, error) {
	chunk := s.chunkFor(id)
	addr, segIdx, _, ok := chunk.Index.Lookup(nebcell.HashId(id))
	if !ok {
		return nebcell.Cell{}, nebcell.ErrCellDoesNotExist
	}
	c, err := s.readEntry(chunk, segIdx, addr)
	if err != nil {
		return nebcell.Cell{}, err
	}
	c.Id = id
	return c, nil
}

// HeadCell returns only the fixed header for id, without decoding the
// body.
func (s *Store) HeadCell(id ids.Id) (nebcell.Header, error) {
	chunk := s.chunkFor(id)
	addr, segIdx, _, ok := chunk.Index.Lookup(nebcell.HashId(id))
	if !ok {
		return nebcell.Header{}, nebcell.ErrCellDoesNotExist
	}
	seg := chunk.Segments[segIdx]
	seg.RLock()
	defer seg.RUnlock()
	buf := seg.Bytes()
	eh, n, err := nebcell.DecodeEntryHeader(buf[addr:])
	if err != nil {
		return nebcell.Header{}, err
	}
	if eh.Type != nebcell.EntryTypeCell {
		return nebcell.Header{}, fmt.Errorf("slab: %w", nebcell.ErrCorruptedCell)
	}
	return nebcell.DecodeHeader(buf[addr+uint32(n) : addr+uint32(n)+nebcell.HeaderSize]), nil
}

// planCell builds the fixed/tail write plan for c against its schema,
// returning the plan and the exact framed entry size that must be
// reserved from a segment.
func (s *Store) planCell(c *nebcell.Cell) (*schema.WritePlan, uint32, *schema.Schema, error) {
	sch, err := s.schemas.Get(c.Header.Schema)
	if err != nil {
		return nil, 0, nil, err
	}
	plan, err := sch.PlanWrite(c.Body, nil)
	if err != nil {
		return nil, 0, nil, err
	}
	contentLen := nebcell.HeaderSize + plan.FixedLen + plan.TailLen
	frameLen := nebcell.EntryFrameLen(uint32(contentLen))
	return plan, frameLen, sch, nil
}

// writeCellBytes serializes c (header + plan.Apply output) into dst,
// returning the number of bytes written (the exact framed entry size).
func writeCellBytes(dst []byte, c *nebcell.Cell, plan *schema.WritePlan) int {
	contentLen := uint32(nebcell.HeaderSize + plan.FixedLen + plan.TailLen)
	n := nebcell.EncodeEntryHeader(dst, nebcell.EntryTypeCell, contentLen)
	hdrBytes := nebcell.EncodeHeader(c.Header)
	copy(dst[n:], hdrBytes[:])
	fixed := dst[n+nebcell.HeaderSize : n+nebcell.HeaderSize+plan.FixedLen]
	tail := dst[n+nebcell.HeaderSize+plan.FixedLen : n+nebcell.HeaderSize+plan.FixedLen+plan.TailLen]
	plan.Apply(fixed, tail)
	return n + int(contentLen)
}

// WriteCell reserves space, writes c, and publishes its address. Rejects
// with ErrCellAlreadyExisted if the hash already maps to a live address,
// publishing a tombstone over the freshly written bytes first.
func (s *Store) WriteCell(c *nebcell.Cell) error {
	c.Header.Hash = nebcell.HashId(c.Id)
	plan, frameLen, _, err := s.planCell(c)
	if err != nil {
		return err
	}
	if frameLen > SegmentSize {
		return nebcell.ErrCellTooLarge
	}
	c.Header.Version = s.nextVersion()
	c.Header.Size = uint32(nebcell.HeaderSize + plan.FixedLen + plan.TailLen)

	chunk := s.chunkFor(c.Id)
	segIdx, addr, ok := chunk.Acquire(frameLen)
	if !ok {
		return nebcell.ErrChunkFull
	}
	seg := chunk.Segments[segIdx]
	n := writeCellBytes(seg.Bytes()[addr:], c, plan)
	chunk.ReleaseAfterWrite(segIdx)

	if err := chunk.Index.Insert(c.Header.Hash, segIdx, addr, uint32(n)); err != nil {
		// Lost the race: another writer already holds this hash live.
		// The bytes we just appended are dead on arrival.
		chunk.Segments[segIdx].PutCellTombstone(addr, uint32(n))
		s.emitTombstone(chunk, c.Header.Partition, c.Header.Hash)
		return nebcell.ErrCellAlreadyExisted
	}
	return nil
}

// UpdateCell requires an existing live address for c.Id; it writes a new
// copy, swaps the index pointer, and emits a tombstone+fragment for the
// old address.
func (s *Store) UpdateCell(c *nebcell.Cell) error {
	c.Header.Hash = nebcell.HashId(c.Id)
	chunk := s.chunkFor(c.Id)
	_, _, _, ok := chunk.Index.Lookup(c.Header.Hash)
	if !ok {
		return nebcell.ErrCellDoesNotExist
	}

	plan, frameLen, _, err := s.planCell(c)
	if err != nil {
		return err
	}
	if frameLen > SegmentSize {
		return nebcell.ErrCellTooLarge
	}
	c.Header.Version = s.nextVersion()
	c.Header.Size = uint32(nebcell.HeaderSize + plan.FixedLen + plan.TailLen)

	newSegIdx, newAddr, ok := chunk.Acquire(frameLen)
	if !ok {
		return nebcell.ErrChunkFull
	}
	seg := chunk.Segments[newSegIdx]
	n := writeCellBytes(seg.Bytes()[newAddr:], c, plan)
	chunk.ReleaseAfterWrite(newSegIdx)

	oldSeg, oldAddr, oldSize, uerr := chunk.Index.Update(c.Header.Hash, newSegIdx, newAddr, uint32(n))
	if uerr != nil {
		return nebcell.ErrCellDoesNotExist
	}
	chunk.Segments[oldSeg].PutCellTombstone(oldAddr, oldSize)
	s.emitTombstone(chunk, c.Header.Partition, c.Header.Hash)
	return nil
}

// emitTombstone appends a standalone tombstone entry recording a delete
// (or overwrite) of hash, independent of the dead-space fragment
// bookkeeping performed on the specific old segment.
func (s *Store) emitTombstone(chunk *Chunk, partition, hash uint64) {
	frame := nebcell.EntryFrameLen(nebcell.TombstoneSize)
	segIdx, addr, ok := chunk.Acquire(frame)
	if !ok {
		return
	}
	seg := chunk.Segments[segIdx]
	buf := seg.Bytes()[addr:]
	n := nebcell.EncodeEntryHeader(buf, nebcell.EntryTypeTombstone, nebcell.TombstoneSize)
	nebcell.EncodeTombstone(buf[n:], nebcell.Tombstone{Partition: partition, Hash: hash, Timestamp: time.Now().UnixNano()})
	chunk.ReleaseAfterWrite(segIdx)
}

// ErrUserCanceledUpdate is returned by UpdateCellBy when f returns false.
var ErrUserCanceledUpdate = nebcell.ErrUserCanceledUpdate

// UpdateCellBy performs a read-modify-write: it reads the current cell,
// invokes f, and (if f returns true) writes the result back with the same
// swap semantics as UpdateCell. If f returns false, the update is
// cancelled and ErrUserCanceledUpdate is returned.
func (s *Store) UpdateCellBy(id ids.Id, f func(nebcell.Cell) (nebcell.Cell, bool)) error {
	cur, err := s.ReadCell(id)
	if err != nil {
		return err
	}
	next, ok := f(cur)
	if !ok {
		return ErrUserCanceledUpdate
	}
	next.Id = id
	next.Header.Hash = cur.Header.Hash
	next.Header.Schema = cur.Header.Schema
	next.Header.Partition = cur.Header.Partition
	return s.UpdateCell(&next)
}

// RemoveCell removes the index entry for id and emits a tombstone covering
// its old address.
func (s *Store) RemoveCell(id ids.Id) error {
	chunk := s.chunkFor(id)
	hash := nebcell.HashId(id)

	partition := id.Partition()
	if head, err := s.HeadCell(id); err == nil {
		partition = head.Partition
	}

	segIdx, addr, size, err := chunk.Index.Remove(hash)
	if err != nil {
		return nebcell.ErrCellDoesNotExist
	}
	chunk.Segments[segIdx].PutCellTombstone(addr, size)
	s.emitTombstone(chunk, partition, hash)
	return nil
}

// ChunkAt exposes a chunk by index, for the cleaner and statistics
// builder.
func (s *Store) ChunkAt(i int) *Chunk { return s.chunks[i] }

// NumChunks returns how many chunks this store manages.
func (s *Store) NumChunks() int { return len(s.chunks) }

// Schemas exposes the backing schema registry.
func (s *Store) Schemas() *schema.Registry { return s.schemas }
