package cell

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
)

// ValueType tags the dynamic variant carried by a Value.
type ValueType uint8

const (
	TypeNull ValueType = iota
	TypeNA
	TypeBool
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeF32
	TypeF64
	TypeString
	TypeBytes
	TypeId
	TypeArray
	TypeMap
)

// arrayMask is the high bit that marks an array in a dynamic-region type
// tag. The codec in package schema writes it alone (0x80), with no base
// type in the low bits, since each element carries its own tag.
const arrayMask ValueType = 0x80

// Value is a single schema field's in-memory payload. It is a closed sum
// type: exactly one of the typed accessors is meaningful, selected by Type.
type Value struct {
	Type  ValueType
	Bool  bool
	I64   int64
	U64   uint64
	F64   float64
	Str   string
	Bytes []byte
	Id    ids.Id
	Array []Value
	Map   map[string]Value
}

func NullValue() Value          { return Value{Type: TypeNull} }
func NAValue() Value            { return Value{Type: TypeNA} }
func BoolValue(b bool) Value    { return Value{Type: TypeBool, Bool: b} }
func I8Value(v int8) Value      { return Value{Type: TypeI8, I64: int64(v)} }
func I16Value(v int16) Value    { return Value{Type: TypeI16, I64: int64(v)} }
func I32Value(v int32) Value    { return Value{Type: TypeI32, I64: int64(v)} }
func I64Value(v int64) Value    { return Value{Type: TypeI64, I64: v} }
func U8Value(v uint8) Value     { return Value{Type: TypeU8, U64: uint64(v)} }
func U16Value(v uint16) Value   { return Value{Type: TypeU16, U64: uint64(v)} }
func U32Value(v uint32) Value   { return Value{Type: TypeU32, U64: uint64(v)} }
func U64Value(v uint64) Value   { return Value{Type: TypeU64, U64: v} }
func F32Value(v float32) Value  { return Value{Type: TypeF32, F64: float64(v)} }
func F64Value(v float64) Value  { return Value{Type: TypeF64, F64: v} }
func StringValue(s string) Value { return Value{Type: TypeString, Str: s} }
func BytesValue(b []byte) Value  { return Value{Type: TypeBytes, Bytes: b} }
func IdValue(id ids.Id) Value    { return Value{Type: TypeId, Id: id} }
func ArrayValue(v []Value) Value { return Value{Type: TypeArray, Array: v} }
func MapValue(m map[string]Value) Value { return Value{Type: TypeMap, Map: m} }

// IsVariable reports whether the value must live in a cell's variable
// region rather than at a fixed schema offset.
func (v Value) IsVariable() bool {
	switch v.Type {
	case TypeString, TypeBytes, TypeArray, TypeMap:
		return true
	default:
		return false
	}
}

// FixedSize returns the encoded width of fixed-size value types. Callers
// must not call this for variable types.
func FixedSize(t ValueType) int {
	switch t {
	case TypeNull, TypeNA:
		return 0
	case TypeBool, TypeI8, TypeU8:
		return 1
	case TypeI16, TypeU16:
		return 2
	case TypeI32, TypeU32, TypeF32:
		return 4
	case TypeI64, TypeU64, TypeF64:
		return 8
	case TypeId:
		return 16
	default:
		panic(fmt.Sprintf("cell: %d is not a fixed-size type", t))
	}
}

// EncodeFixed writes a fixed-size value's bytes (no type tag) to dst,
// which must be exactly FixedSize(v.Type) long. Exported for use by
// package schema's codec, which walks a Field tree built from cell.Value.
func EncodeFixed(dst []byte, v Value) { encodeFixed(dst, v) }

// DecodeFixed is the exported counterpart of EncodeFixed.
func DecodeFixed(t ValueType, src []byte) Value { return decodeFixed(t, src) }

// encodeFixed writes a fixed-size value's bytes (no type tag) to dst,
// which must be exactly FixedSize(v.Type) long.
func encodeFixed(dst []byte, v Value) {
	switch v.Type {
	case TypeNull, TypeNA:
		// zero width
	case TypeBool:
		if v.Bool {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case TypeI8, TypeU8:
		dst[0] = byte(v.U64)
		if v.Type == TypeI8 {
			dst[0] = byte(v.I64)
		}
	case TypeI16:
		binary.LittleEndian.PutUint16(dst, uint16(v.I64))
	case TypeU16:
		binary.LittleEndian.PutUint16(dst, uint16(v.U64))
	case TypeI32:
		binary.LittleEndian.PutUint32(dst, uint32(v.I64))
	case TypeU32:
		binary.LittleEndian.PutUint32(dst, uint32(v.U64))
	case TypeF32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v.F64)))
	case TypeI64:
		binary.LittleEndian.PutUint64(dst, uint64(v.I64))
	case TypeU64:
		binary.LittleEndian.PutUint64(dst, v.U64)
	case TypeF64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v.F64))
	case TypeId:
		binary.LittleEndian.PutUint64(dst[0:8], v.Id.Higher)
		binary.LittleEndian.PutUint64(dst[8:16], v.Id.Lower)
	default:
		panic(fmt.Sprintf("cell: %d is not a fixed-size type", v.Type))
	}
}

// decodeFixed is the inverse of encodeFixed.
func decodeFixed(t ValueType, src []byte) Value {
	switch t {
	case TypeNull:
		return NullValue()
	case TypeNA:
		return NAValue()
	case TypeBool:
		return BoolValue(src[0] != 0)
	case TypeI8:
		return I8Value(int8(src[0]))
	case TypeU8:
		return U8Value(src[0])
	case TypeI16:
		return I16Value(int16(binary.LittleEndian.Uint16(src)))
	case TypeU16:
		return U16Value(binary.LittleEndian.Uint16(src))
	case TypeI32:
		return I32Value(int32(binary.LittleEndian.Uint32(src)))
	case TypeU32:
		return U32Value(binary.LittleEndian.Uint32(src))
	case TypeF32:
		return F32Value(math.Float32frombits(binary.LittleEndian.Uint32(src)))
	case TypeI64:
		return I64Value(int64(binary.LittleEndian.Uint64(src)))
	case TypeU64:
		return U64Value(binary.LittleEndian.Uint64(src))
	case TypeF64:
		return F64Value(math.Float64frombits(binary.LittleEndian.Uint64(src)))
	case TypeId:
		return IdValue(ids.Id{
			Higher: binary.LittleEndian.Uint64(src[0:8]),
			Lower:  binary.LittleEndian.Uint64(src[8:16]),
		})
	default:
		panic(fmt.Sprintf("cell: %d is not a fixed-size type", t))
	}
}
