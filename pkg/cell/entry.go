package cell

import (
	"encoding/binary"
	"fmt"
)

// EntryType tags a segment entry as either a live cell record or a
// tombstone: the high nibble of the framing byte carries the type, the
// low nibble carries the number of little-endian length bytes (0-4) that
// follow.
type EntryType uint8

const (
	EntryTypeCell      EntryType = 0b0001
	EntryTypeTombstone EntryType = 0b0011
)

// EntryHeader is the framing prefix written before every segment entry:
// 1 flag byte + 0..4 length bytes.
type EntryHeader struct {
	Type          EntryType
	ContentLength uint32
}

// lenByteCount returns how many little-endian bytes are needed to hold
// length: the minimal number of whole bytes, 0 through 4.
func lenByteCount(length uint32) uint8 {
	switch {
	case length == 0:
		return 0
	case length <= 0xFF:
		return 1
	case length <= 0xFFFF:
		return 2
	case length <= 0xFFFFFF:
		return 3
	default:
		return 4
	}
}

// EncodeEntryHeader writes the framing byte(s) for an entry into dst,
// returning the number of bytes written (1 + lenByteCount(contentLength)).
// dst must have at least 5 bytes of room.
func EncodeEntryHeader(dst []byte, t EntryType, contentLength uint32) int {
	nLenBytes := lenByteCount(contentLength)
	dst[0] = byte(t)<<4 | nLenBytes
	if nLenBytes > 0 {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], contentLength)
		copy(dst[1:1+nLenBytes], lenBuf[:nLenBytes])
	}
	return 1 + int(nLenBytes)
}

// DecodeEntryHeader reads the framing byte(s) starting at src[0], returning
// the header and the number of framing bytes consumed.
func DecodeEntryHeader(src []byte) (EntryHeader, int, error) {
	if len(src) < 1 {
		return EntryHeader{}, 0, fmt.Errorf("cell: %w: truncated entry frame", ErrCorruptedCell)
	}
	flagByte := src[0]
	entryType := EntryType(flagByte >> 4)
	nLenBytes := int(flagByte & 0x0F)
	if entryType != EntryTypeCell && entryType != EntryTypeTombstone {
		return EntryHeader{}, 0, fmt.Errorf("cell: %w: unknown entry type %#x", ErrCorruptedCell, entryType)
	}
	if nLenBytes > 4 || len(src) < 1+nLenBytes {
		return EntryHeader{}, 0, fmt.Errorf("cell: %w: truncated entry length", ErrCorruptedCell)
	}
	var lenBuf [4]byte
	copy(lenBuf[:], src[1:1+nLenBytes])
	length := binary.LittleEndian.Uint32(lenBuf[:])
	return EntryHeader{Type: entryType, ContentLength: length}, 1 + nLenBytes, nil
}

// MaxEntryFrameSize is the largest possible framing prefix: 1 flag byte +
// 4 length bytes.
const MaxEntryFrameSize = 5

// EntryFrameLen returns the exact framed size of an entry with the given
// content length: flag byte + length bytes + content. Allocation sites use
// this so reserved space matches written bytes exactly, keeping entries
// contiguous for the cleaner and for sequential-scan recovery.
func EntryFrameLen(contentLength uint32) uint32 {
	return 1 + uint32(lenByteCount(contentLength)) + contentLength
}

// Tombstone is a delete marker entry, carrying enough information for the
// cleaner to reclaim the cell's old space and for readers to recognize a
// key as deleted until compaction drops it.
type Tombstone struct {
	Partition uint64
	Hash      uint64
	Timestamp int64
}

// TombstoneSize is the fixed encoded width of a Tombstone payload.
const TombstoneSize = 8 + 8 + 8

func EncodeTombstone(dst []byte, t Tombstone) {
	binary.LittleEndian.PutUint64(dst[0:8], t.Partition)
	binary.LittleEndian.PutUint64(dst[8:16], t.Hash)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(t.Timestamp))
}

func DecodeTombstone(src []byte) Tombstone {
	return Tombstone{
		Partition: binary.LittleEndian.Uint64(src[0:8]),
		Hash:      binary.LittleEndian.Uint64(src[8:16]),
		Timestamp: int64(binary.LittleEndian.Uint64(src[16:24])),
	}
}
