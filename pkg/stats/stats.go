package stats

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/shisoft/Nebuchadnezzar/pkg/slab"
)

// BlockSize is the number of index entries processed per parallel worker
// block.
const BlockSize = 1024

// FieldStats is the published per-(schema, field) statistics: a merged
// approximate histogram of the field's values. Aggregate counts live on
// SchemaStats.
type FieldStats struct {
	SchemaId  uint32
	FieldName string
	Histogram Histogram
}

// SchemaStats aggregates byte size, cell count, and distinct segment
// count for one schema, alongside its per-field histograms.
type SchemaStats struct {
	SchemaId      uint32
	CellCount     int
	ByteSize      uint64
	SegmentCount  int
	Fields        map[string]FieldStats
}

// blockResult is one block's contribution: per-(schema,field) feature
// samples plus the block's own byte/count/segment tallies, gathered
// before any cross-block merge happens.
type blockResult struct {
	features map[statKey][]uint64
	bytes    map[uint32]uint64
	count    map[uint32]int
	segments map[uint32]map[uint64]struct{} // schema -> set of (chunk<<32|segment)
}

type statKey struct {
	schemaId uint32
	field    string
}

// Build scans every chunk of store in parallel blocks of BlockSize live
// entries, computing a local equi-depth histogram per (schema, field)
// that carries an index kind, then merges all blocks into a
// per-schema Snapshot.
type indexedEntry struct {
	chunkIdx int
	entry    slab.IndexSnapshot
}

func Build(store *slab.Store) *Snapshot {
	var allEntries []indexedEntry
	for ci := 0; ci < store.NumChunks(); ci++ {
		chunk := store.ChunkAt(ci)
		for _, e := range chunk.Index.Snapshot() {
			allEntries = append(allEntries, indexedEntry{ci, e})
		}
	}

	numBlocks := (len(allEntries) + BlockSize - 1) / BlockSize
	results := make([]*blockResult, numBlocks)

	// Build per chunk, in parallel: each block is independent read-only
	// work over the index snapshot, so errgroup's goroutine-per-task
	// fan-out (one goroutine per block, no concurrency limit) is a direct fit.
	g, _ := errgroup.WithContext(context.Background())
	for b := 0; b < numBlocks; b++ {
		b := b
		g.Go(func() error {
			start := b * BlockSize
			end := start + BlockSize
			if end > len(allEntries) {
				end = len(allEntries)
			}
			results[b] = processBlock(store, allEntries[start:end])
			return nil
		})
	}
	_ = g.Wait()

	return mergeBlocks(results)
}

func processBlock(store *slab.Store, entries []indexedEntry) *blockResult {
	res := &blockResult{
		features: make(map[statKey][]uint64),
		bytes:    make(map[uint32]uint64),
		count:    make(map[uint32]int),
		segments: make(map[uint32]map[uint64]struct{}),
	}
	for _, e := range entries {
		chunk := store.ChunkAt(e.chunkIdx)
		c, err := store.ReadAt(chunk, e.entry.Segment, e.entry.Addr)
		if err != nil {
			continue
		}
		sch, err := store.Schemas().Get(c.Header.Schema)
		if err != nil {
			continue
		}
		res.count[sch.Id]++
		res.bytes[sch.Id] += uint64(c.Header.Size)
		segKey := uint64(e.chunkIdx)<<32 | uint64(e.entry.Segment)
		if res.segments[sch.Id] == nil {
			res.segments[sch.Id] = make(map[uint64]struct{})
		}
		res.segments[sch.Id][segKey] = struct{}{}

		for pathHash, kinds := range sch.IndexFields {
			if len(kinds) == 0 {
				continue
			}
			f, ok := sch.IdIndex[pathHash]
			if !ok {
				continue
			}
			v, ok := c.Body[f.Name]
			if !ok {
				continue
			}
			key := statKey{schemaId: sch.Id, field: f.Name}
			res.features[key] = append(res.features[key], feature(v))
		}
	}
	return res
}

func mergeBlocks(blocks []*blockResult) *Snapshot {
	snap := &Snapshot{Schemas: make(map[uint32]*SchemaStats)}
	perFieldLocals := make(map[statKey][]Histogram)
	segSets := make(map[uint32]map[uint64]struct{})

	for _, b := range blocks {
		if b == nil {
			continue
		}
		for schemaId, n := range b.count {
			ss := snap.schemaFor(schemaId)
			ss.CellCount += n
			ss.ByteSize += b.bytes[schemaId]
		}
		for schemaId, segs := range b.segments {
			if segSets[schemaId] == nil {
				segSets[schemaId] = make(map[uint64]struct{})
			}
			for s := range segs {
				segSets[schemaId][s] = struct{}{}
			}
		}
		for key, values := range b.features {
			local := BuildEquiDepth(values, LocalBuckets)
			perFieldLocals[key] = append(perFieldLocals[key], local)
		}
	}

	for schemaId, segs := range segSets {
		snap.schemaFor(schemaId).SegmentCount = len(segs)
	}

	for key, locals := range perFieldLocals {
		global := MergePartitioned(locals, GlobalBuckets)
		ss := snap.schemaFor(key.schemaId)
		if ss.Fields == nil {
			ss.Fields = make(map[string]FieldStats)
		}
		ss.Fields[key.field] = FieldStats{SchemaId: key.schemaId, FieldName: key.field, Histogram: global}
	}

	// Stable ordering is not required for the map-based snapshot; sort
	// just the schema id list so callers iterating for display get a
	// deterministic order.
	ids := make([]uint32, 0, len(snap.Schemas))
	for id := range snap.Schemas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	snap.order = ids
	return snap
}

func (s *Snapshot) schemaFor(id uint32) *SchemaStats {
	ss, ok := s.Schemas[id]
	if !ok {
		ss = &SchemaStats{SchemaId: id}
		s.Schemas[id] = ss
	}
	return ss
}
