package schema

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/shisoft/Nebuchadnezzar/pkg/cell"
)

// writeInstruction is one step of a write plan: write v for field f, either
// at its static fixed offset or as a jump-pointer into the variable tail.
// PlanWrite walks the schema once to produce this ordered list before any
// segment space is reserved, so ErrCellTooLarge can be raised before any
// bytes are written.
type writeInstruction struct {
	field *Field
	value cell.Value
}

// WritePlan is the result of planning a cell body write: the byte lengths
// needed so the caller (pkg/slab) can reserve exactly that much segment
// space before Apply touches any bytes.
type WritePlan struct {
	schema       *Schema
	instructions []writeInstruction
	dynamic      map[uint64]cell.Value
	FixedLen     int
	TailLen      int
}

// PlanWrite walks s's field tree against body (and, for dynamic schemas,
// dynamicBody keyed by field-path hash) and returns an ordered plan with
// the exact fixed/tail byte lengths required.
func (s *Schema) PlanWrite(body map[string]cell.Value, dynamicBody map[uint64]cell.Value) (*WritePlan, error) {
	plan := &WritePlan{schema: s, dynamic: dynamicBody}
	tailLen := 0
	if s.IsDynamic {
		tailLen += 4 // reserved dynamic-trailer offset slot
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		v, present := body[f.Name]
		if !present {
			if f.Nullable {
				v = cell.NullValue()
			} else {
				return nil, &cell.MismatchError{Field: f.Name, Value: nil}
			}
		}
		if err := validateValue(f, v); err != nil {
			return nil, err
		}
		plan.instructions = append(plan.instructions, writeInstruction{field: f, value: v})
		if !f.IsFixed() {
			if !(v.Type == cell.TypeNull || v.Type == cell.TypeNA) {
				tailLen += variableEncodedLen(v)
			}
		}
	}
	if s.IsDynamic {
		for hash, v := range dynamicBody {
			if _, known := s.IdIndex[hash]; known {
				continue
			}
			tailLen += 8 + 1 // pathHash + tag
			if isVariableTag(v) {
				tailLen += variableEncodedLen(v)
			} else if v.Type != cell.TypeNull && v.Type != cell.TypeNA {
				tailLen += cell.FixedSize(v.Type)
			}
		}
	}
	plan.FixedLen = s.StaticBound
	plan.TailLen = tailLen
	return plan, nil
}

func validateValue(f *Field, v cell.Value) error {
	if v.Type == cell.TypeNull || v.Type == cell.TypeNA {
		if !f.Nullable {
			return &cell.MismatchError{Field: f.Name, Value: v}
		}
		return nil
	}
	if f.IsArray && v.Type != cell.TypeArray {
		return &cell.MismatchError{Field: f.Name, Value: v}
	}
	if !f.IsArray && !f.IsFixed() {
		// string/bytes/map scalar variable field
		if v.Type != f.Type {
			return &cell.MismatchError{Field: f.Name, Value: v}
		}
	}
	if f.IsFixed() && v.Type != f.Type {
		return &cell.MismatchError{Field: f.Name, Value: v}
	}
	return nil
}

func isVariableTag(v cell.Value) bool {
	switch v.Type {
	case cell.TypeString, cell.TypeBytes, cell.TypeArray, cell.TypeMap:
		return true
	default:
		return false
	}
}

// variableEncodedLen returns the tail-region byte length needed for a
// variable value, not including any jump pointer or dynamic tag prefix.
func variableEncodedLen(v cell.Value) int {
	switch v.Type {
	case cell.TypeString:
		return 4 + len(v.Str)
	case cell.TypeBytes:
		return 4 + len(v.Bytes)
	case cell.TypeArray:
		n := 4 // element count
		for _, e := range v.Array {
			n += 1 // element type tag
			if isVariableTag(e) {
				n += variableEncodedLen(e)
			} else if e.Type != cell.TypeNull && e.Type != cell.TypeNA {
				n += cell.FixedSize(e.Type)
			}
		}
		return n
	case cell.TypeMap:
		n := 4
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e := v.Map[k]
			n += 4 + len(k) // key length-prefixed
			n += 1          // value type tag
			if isVariableTag(e) {
				n += variableEncodedLen(e)
			} else if e.Type != cell.TypeNull && e.Type != cell.TypeNA {
				n += cell.FixedSize(e.Type)
			}
		}
		return n
	default:
		return cell.FixedSize(v.Type)
	}
}

// Apply executes a write plan into caller-provided fixed/tail buffers,
// which must be exactly plan.FixedLen and plan.TailLen bytes.
func (p *WritePlan) Apply(fixed, tail []byte) error {
	tailCursor := 0
	if p.schema.IsDynamic {
		tailCursor = 4
	}
	for _, instr := range p.instructions {
		f, v := instr.field, instr.value
		if f.IsFixed() {
			writeFixedField(fixed, f, v)
			continue
		}
		isNull := v.Type == cell.TypeNull || v.Type == cell.TypeNA
		if isNull {
			binary.LittleEndian.PutUint32(fixed[f.Offset:f.Offset+4], nullPointer)
			continue
		}
		binary.LittleEndian.PutUint32(fixed[f.Offset:f.Offset+4], uint32(tailCursor))
		n := writeVariable(tail[tailCursor:], v)
		tailCursor += n
	}
	if p.schema.IsDynamic {
		binary.LittleEndian.PutUint32(tail[0:4], uint32(tailCursor))
		hashes := make([]uint64, 0, len(p.dynamic))
		for h := range p.dynamic {
			if _, known := p.schema.IdIndex[h]; known {
				continue
			}
			hashes = append(hashes, h)
		}
		sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
		for _, h := range hashes {
			v := p.dynamic[h]
			binary.LittleEndian.PutUint64(tail[tailCursor:tailCursor+8], h)
			tailCursor += 8
			tag := dynamicTag(v)
			tail[tailCursor] = tag
			tailCursor++
			if v.Type == cell.TypeNull || v.Type == cell.TypeNA {
				continue
			}
			if isVariableTag(v) {
				n := writeVariable(tail[tailCursor:], v)
				tailCursor += n
			} else {
				encodeFixedInto(tail[tailCursor:], v)
				tailCursor += cell.FixedSize(v.Type)
			}
		}
	}
	return nil
}

// dynamicTag builds the self-describing type tag for a dynamic-schema tail
// field: the value's ValueType, with the high bit masked on for arrays.
// Null values in dynamic regions use the reserved TypeNull code directly.
func dynamicTag(v cell.Value) byte {
	if v.Type == cell.TypeArray {
		return 0x80 // generic array marker; elements carry their own self-describing tags
	}
	return byte(v.Type)
}

func writeFixedField(fixed []byte, f *Field, v cell.Value) {
	off := f.Offset
	if f.Nullable {
		if v.Type == cell.TypeNull || v.Type == cell.TypeNA {
			fixed[off] = 1
			return
		}
		fixed[off] = 0
		off++
	}
	encodeFixedInto(fixed[off:], v)
}

func encodeFixedInto(dst []byte, v cell.Value) {
	cell.EncodeFixed(dst[:cell.FixedSize(v.Type)], v)
}

// writeVariable encodes a variable value's payload (no jump pointer, no
// dynamic tag) into dst and returns the number of bytes written.
func writeVariable(dst []byte, v cell.Value) int {
	switch v.Type {
	case cell.TypeString:
		binary.LittleEndian.PutUint32(dst[0:4], uint32(len(v.Str)))
		copy(dst[4:], v.Str)
		return 4 + len(v.Str)
	case cell.TypeBytes:
		binary.LittleEndian.PutUint32(dst[0:4], uint32(len(v.Bytes)))
		copy(dst[4:], v.Bytes)
		return 4 + len(v.Bytes)
	case cell.TypeArray:
		binary.LittleEndian.PutUint32(dst[0:4], uint32(len(v.Array)))
		cursor := 4
		for _, e := range v.Array {
			dst[cursor] = dynamicTag(e)
			cursor++
			if e.Type == cell.TypeNull || e.Type == cell.TypeNA {
				continue
			}
			if isVariableTag(e) {
				n := writeVariable(dst[cursor:], e)
				cursor += n
			} else {
				encodeFixedInto(dst[cursor:], e)
				cursor += cell.FixedSize(e.Type)
			}
		}
		return cursor
	case cell.TypeMap:
		binary.LittleEndian.PutUint32(dst[0:4], uint32(len(v.Map)))
		cursor := 4
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e := v.Map[k]
			binary.LittleEndian.PutUint32(dst[cursor:cursor+4], uint32(len(k)))
			cursor += 4
			copy(dst[cursor:], k)
			cursor += len(k)
			dst[cursor] = dynamicTag(e)
			cursor++
			if e.Type == cell.TypeNull || e.Type == cell.TypeNA {
				continue
			}
			if isVariableTag(e) {
				n := writeVariable(dst[cursor:], e)
				cursor += n
			} else {
				encodeFixedInto(dst[cursor:], e)
				cursor += cell.FixedSize(e.Type)
			}
		}
		return cursor
	default:
		panic(fmt.Sprintf("schema: %d is not a variable type", v.Type))
	}
}
