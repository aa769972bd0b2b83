// Package stats implements Neb's statistics builder: per-chunk, per-field
// equi-depth histograms built in parallel over the live cell index, merged
// into an approximate global histogram per schema/field.
package stats

import (
	"math"

	"github.com/cespare/xxhash/v2"
	nebcell "github.com/shisoft/Nebuchadnezzar/pkg/cell"
)

// feature reduces an arbitrary cell value to a single 64-bit ordered
// feature for histogram bucketing. Numeric types map onto an order-preserving
// unsigned encoding; strings/bytes hash with xxhash and ids XOR their two
// halves, trading exact ordering for a usable approximate distribution.
// Arrays, maps and any other type map to 0.
func feature(v nebcell.Value) uint64 {
	switch v.Type {
	case nebcell.TypeBool:
		if v.Bool {
			return 1
		}
		return 0
	case nebcell.TypeI8, nebcell.TypeI16, nebcell.TypeI32, nebcell.TypeI64:
		return flipSign(uint64(v.I64))
	case nebcell.TypeU8, nebcell.TypeU16, nebcell.TypeU32, nebcell.TypeU64:
		return v.U64
	case nebcell.TypeF32, nebcell.TypeF64:
		return floatOrderedBits(v.F64)
	case nebcell.TypeString:
		return xxhash.Sum64String(v.Str)
	case nebcell.TypeBytes:
		return xxhash.Sum64(v.Bytes)
	case nebcell.TypeId:
		return v.Id.Higher ^ v.Id.Lower
	default:
		return 0
	}
}

// flipSign maps a two's-complement signed bit pattern onto an
// order-preserving unsigned one (flip the sign bit), so plain numeric
// comparison of the uint64 result matches signed comparison of the
// original value.
func flipSign(bits uint64) uint64 {
	return bits ^ (1 << 63)
}

// floatOrderedBits maps an IEEE-754 bit pattern onto an order-preserving
// unsigned encoding: for positive floats, flip the sign bit; for
// negative floats, flip every bit.
func floatOrderedBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits ^ (1 << 63)
}
