// Package backup implements Neb's opportunistic segment archival: when a
// chunk is configured with a backup directory, a dead segment's live
// prefix is streamed out as snappy-compressed, crc-guarded blocks before
// the segment is recycled, and replayed back sequentially on startup.
package backup

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/snappy"

	"github.com/shisoft/Nebuchadnezzar/pkg/pools"
	"github.com/shisoft/Nebuchadnezzar/pkg/slab"
)

// Archive satisfies slab.ArchiveFunc, so a Cleaner can be wired directly
// to it: slab.NewCleaner(store, backup.Archive).
var _ slab.ArchiveFunc = Archive

// BlockSize bounds how many raw bytes are snappy-encoded into one block,
// so archiving a segment never needs to hold the whole compressed output
// (or a single giant decompression buffer) in memory at once.
const BlockSize = pools.SegmentChunk

// fileName returns the archive file name for a segment, laid out as
// <backup_storage>/<chunk>/<segment-id>.seg.snappy.
func fileName(segmentID uint64) string {
	return fmt.Sprintf("%d.seg.snappy", segmentID)
}

// Archive streams seg's live prefix ([0, AppendOffset)) to
// seg.BackupPath()/<id>.seg.snappy as a sequence of snappy blocks, each
// trailed by a crc32 checksum of its compressed bytes. It is a no-op
// returning (false, nil) when seg has no configured backup path, and
// idempotent via Segment's own archived flag: a second call on an
// already-archived segment also returns (false, nil).
func Archive(seg *slab.Segment) (bool, error) {
	dir := seg.BackupPath()
	if dir == "" {
		return false, nil
	}
	if !seg.MarkArchived() {
		return false, nil
	}

	seg.RLock()
	live := seg.AppendOffset()
	buf := seg.Bytes()
	data := make([]byte, live)
	copy(data, buf[:live])
	seg.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		seg.UnmarkArchived()
		return false, fmt.Errorf("backup: mkdir: %w", err)
	}
	path := filepath.Join(dir, fileName(seg.Id))

	if err := writeBlocks(path, data); err != nil {
		seg.UnmarkArchived()
		return false, err
	}
	return true, nil
}

func writeBlocks(path string, data []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("backup: create: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	scratch := pools.GetSized(snappy.MaxEncodedLen(BlockSize))
	defer pools.Put(scratch)

	for off := 0; off < len(data); off += BlockSize {
		end := off + BlockSize
		if end > len(data) {
			end = len(data)
		}
		if err := writeBlock(w, data[off:end], scratch); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("backup: flush: %w", err)
	}
	return f.Sync()
}

func writeBlock(w *bufio.Writer, raw []byte, scratch []byte) error {
	compressed := snappy.Encode(scratch[:cap(scratch)], raw)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("backup: write block length: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("backup: write block: %w", err)
	}
	checksum := crc32.ChecksumIEEE(compressed)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], checksum)
	if _, err := w.Write(crcBuf[:]); err != nil {
		return fmt.Errorf("backup: write block checksum: %w", err)
	}
	return nil
}

// ReplayFile reads path block by block, calling handler with each block's
// decompressed bytes in order. Recovery is best-effort: a short read or a
// checksum mismatch on any block is treated as a torn write and stops
// replay there without error, whether or not that block is the last one
// in the file. Only a block that passes its checksum but fails to
// decompress is reported as an error.
func ReplayFile(path string, handler func(data []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("backup: open: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return nil // truncated length prefix: torn trailing write
		}
		blockLen := binary.BigEndian.Uint32(lenBuf[:])

		compressed := make([]byte, blockLen)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return nil // torn trailing block
		}

		var crcBuf [4]byte
		if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
			return nil // torn trailing checksum
		}
		if crc32.ChecksumIEEE(compressed) != binary.BigEndian.Uint32(crcBuf[:]) {
			return nil // torn/corrupt trailing block
		}

		raw, err := snappy.Decode(nil, compressed)
		if err != nil {
			return fmt.Errorf("backup: decompress %s: %w", path, err)
		}
		if err := handler(raw); err != nil {
			return err
		}
	}
}

// ReplayDir replays every *.seg.snappy file under dir in segment-id
// order, calling handler once per decompressed block with the segment id
// the block came from, so a caller can rebuild whatever state an
// archived-but-not-yet-recycled segment still holds. No startup path in
// this repository calls it.
func ReplayDir(dir string, handler func(segmentID uint64, data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("backup: readdir: %w", err)
	}

	type segFile struct {
		id   uint64
		name string
	}
	var files []segFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var id uint64
		if _, err := fmt.Sscanf(e.Name(), "%d.seg.snappy", &id); err != nil {
			continue
		}
		files = append(files, segFile{id: id, name: e.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].id < files[j].id })

	for _, sf := range files {
		id := sf.id
		path := filepath.Join(dir, sf.name)
		if err := ReplayFile(path, func(data []byte) error {
			return handler(id, data)
		}); err != nil {
			return err
		}
	}
	return nil
}
