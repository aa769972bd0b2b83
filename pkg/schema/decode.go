package schema

import (
	"encoding/binary"

	"github.com/shisoft/Nebuchadnezzar/pkg/cell"
)

// Decode reads a cell body back out of its fixed/tail regions. When
// requested is non-nil, it must be a sorted slice of field-path hashes
// (known or dynamic); only those fields are decoded, and decoding
// short-circuits once every requested field has been produced.
// requested == nil decodes every field, known and dynamic.
func (s *Schema) Decode(fixed, tail []byte, requested []uint64) (map[string]cell.Value, map[uint64]cell.Value, error) {
	var wanted map[uint64]bool
	remaining := -1
	if requested != nil {
		wanted = make(map[uint64]bool, len(requested))
		for _, h := range requested {
			wanted[h] = true
		}
		remaining = len(wanted)
	}

	body := make(map[string]cell.Value)
	for i := range s.Fields {
		if remaining == 0 {
			break
		}
		f := &s.Fields[i]
		if wanted != nil && !wanted[f.PathHash] {
			continue
		}
		v, err := decodeFieldValue(fixed, tail, f)
		if err != nil {
			return nil, nil, err
		}
		body[f.Name] = v
		if wanted != nil {
			delete(wanted, f.PathHash)
			remaining--
		}
	}

	var dynamic map[uint64]cell.Value
	if s.IsDynamic && remaining != 0 {
		dynamic = make(map[uint64]cell.Value)
		dynOffset := binary.LittleEndian.Uint32(tail[0:4])
		cursor := int(dynOffset)
		for cursor < len(tail) {
			if remaining == 0 {
				break
			}
			hash := binary.LittleEndian.Uint64(tail[cursor : cursor+8])
			cursor += 8
			tag := tail[cursor]
			cursor++
			v, n := decodeDynamicValue(tail, cursor, tag)
			cursor += n
			if wanted == nil || wanted[hash] {
				dynamic[hash] = v
				if wanted != nil {
					delete(wanted, hash)
					remaining--
				}
			}
		}
	}
	return body, dynamic, nil
}

func decodeFieldValue(fixed, tail []byte, f *Field) (cell.Value, error) {
	if f.IsFixed() {
		off := f.Offset
		if f.Nullable {
			if fixed[off] == 1 {
				return cell.NullValue(), nil
			}
			off++
		}
		w := cell.FixedSize(f.Type)
		return cell.DecodeFixed(f.Type, fixed[off:off+w]), nil
	}
	ptr := binary.LittleEndian.Uint32(fixed[f.Offset : f.Offset+4])
	if ptr == nullPointer {
		return cell.NullValue(), nil
	}
	v, _ := decodeVariable(tail, int(ptr), f.Type, f.IsArray)
	return v, nil
}

// decodeVariable decodes the variable-region payload for a known field of
// static type t (or an array thereof) starting at tail[pos:]. Returns the
// value and the number of bytes consumed.
func decodeVariable(tail []byte, pos int, t cell.ValueType, isArray bool) (cell.Value, int) {
	if isArray {
		return decodeArrayBody(tail, pos)
	}
	switch t {
	case cell.TypeString:
		n := int(binary.LittleEndian.Uint32(tail[pos : pos+4]))
		return cell.StringValue(string(tail[pos+4 : pos+4+n])), 4 + n
	case cell.TypeBytes:
		n := int(binary.LittleEndian.Uint32(tail[pos : pos+4]))
		b := make([]byte, n)
		copy(b, tail[pos+4:pos+4+n])
		return cell.BytesValue(b), 4 + n
	case cell.TypeMap:
		return decodeMapBody(tail, pos)
	default:
		w := cell.FixedSize(t)
		return cell.DecodeFixed(t, tail[pos:pos+w]), w
	}
}

func decodeArrayBody(tail []byte, pos int) (cell.Value, int) {
	start := pos
	count := int(binary.LittleEndian.Uint32(tail[pos : pos+4]))
	pos += 4
	elems := make([]cell.Value, 0, count)
	for i := 0; i < count; i++ {
		tag := tail[pos]
		pos++
		v, n := decodeDynamicValue(tail, pos, tag)
		pos += n
		elems = append(elems, v)
	}
	return cell.ArrayValue(elems), pos - start
}

func decodeMapBody(tail []byte, pos int) (cell.Value, int) {
	start := pos
	count := int(binary.LittleEndian.Uint32(tail[pos : pos+4]))
	pos += 4
	m := make(map[string]cell.Value, count)
	for i := 0; i < count; i++ {
		klen := int(binary.LittleEndian.Uint32(tail[pos : pos+4]))
		pos += 4
		key := string(tail[pos : pos+klen])
		pos += klen
		tag := tail[pos]
		pos++
		v, n := decodeDynamicValue(tail, pos, tag)
		pos += n
		m[key] = v
	}
	return cell.MapValue(m), pos - start
}

// decodeDynamicValue decodes one self-describing {tag, length?, bytes}
// entry from the dynamic tail region. Returns the value
// and the number of bytes consumed after the tag byte.
func decodeDynamicValue(tail []byte, pos int, tag byte) (cell.Value, int) {
	if tag&0x80 != 0 {
		v, n := decodeArrayBody(tail, pos)
		return v, n
	}
	t := cell.ValueType(tag)
	if t == cell.TypeNull {
		return cell.NullValue(), 0
	}
	if t == cell.TypeNA {
		return cell.NAValue(), 0
	}
	switch t {
	case cell.TypeString, cell.TypeBytes, cell.TypeMap:
		v, n := decodeVariable(tail, pos, t, false)
		return v, n
	default:
		w := cell.FixedSize(t)
		return cell.DecodeFixed(t, tail[pos:pos+w]), w
	}
}
