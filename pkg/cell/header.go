package cell

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
)

// HeaderSize is the fixed, packed size of a cell header:
// version:u64, size:u32, schema:u32, hash:u64, partition:u64.
const HeaderSize = 32

// Header is a cell's fixed-size prefix. It uniquely identifies a cell
// within a chunk by Hash and routes cells across chunks/servers by
// Partition.
type Header struct {
	Version   uint64
	Size      uint32
	Schema    uint32
	Hash      uint64
	Partition uint64
}

// EncodeHeader packs h into a 32-byte buffer.
func EncodeHeader(h Header) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Size)
	binary.LittleEndian.PutUint32(buf[12:16], h.Schema)
	binary.LittleEndian.PutUint64(buf[16:24], h.Hash)
	binary.LittleEndian.PutUint64(buf[24:32], h.Partition)
	return buf
}

// DecodeHeader unpacks a 32-byte buffer into a Header.
func DecodeHeader(buf []byte) Header {
	_ = buf[HeaderSize-1] // bounds check hint
	return Header{
		Version:   binary.LittleEndian.Uint64(buf[0:8]),
		Size:      binary.LittleEndian.Uint32(buf[8:12]),
		Schema:    binary.LittleEndian.Uint32(buf[12:16]),
		Hash:      binary.LittleEndian.Uint64(buf[16:24]),
		Partition: binary.LittleEndian.Uint64(buf[24:32]),
	}
}

// HashRoutingKey hashes routing key bytes (typically the schema's key
// field, encoded) with xxhash. The store does not use it for Header.Hash,
// which it derives from the cell's Id via HashId.
func HashRoutingKey(routingKey []byte) uint64 {
	return xxhash.Sum64(routingKey)
}

// HashId derives a cell's chunk-index hash from its Id. The chunk index
// is keyed by this hash, so deriving it deterministically from Id means
// two distinct ids that collide surface as ErrCellAlreadyExisted and
// resolution is left to the caller.
func HashId(id ids.Id) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], id.Higher)
	binary.LittleEndian.PutUint64(buf[8:16], id.Lower)
	return xxhash.Sum64(buf[:])
}
