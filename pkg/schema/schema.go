// Package schema implements Neb's schema registry: a map from numeric
// schema ids to field trees that drive both the cell write planner and the
// cell reader.
package schema

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/shisoft/Nebuchadnezzar/pkg/cell"
)

// IndexKind names a secondary access path a field participates in. Neb's
// planner consults Schema.IndexFields to decide which fields the
// statistics builder (pkg/stats) and a future LSM secondary index must
// maintain.
type IndexKind uint8

const (
	Ranged IndexKind = iota
	Hashed
	Vectorized
	Statistics
)

// Field describes one node in a schema's field tree.
type Field struct {
	Name       string
	Type       cell.ValueType
	Nullable   bool
	IsArray    bool
	SubFields  []Field // non-nil only for nested/struct fields
	Offset     int     // static byte offset of the value (fixed) or its jump pointer (variable)
	PathHash   uint64  // hash of the fully-qualified field path
	IndexKinds map[IndexKind]bool
}

// IsFixed reports whether the field's value bytes live inline in the fixed
// region. Variable fields (arrays, strings, bytes, maps, nested sub-field
// trees) instead park a 4-byte jump pointer in the fixed region that
// locates their payload in the trailing variable region.
func (f *Field) IsFixed() bool {
	if f.IsArray || f.Type == cell.TypeString || f.Type == cell.TypeBytes || f.Type == cell.TypeMap {
		return false
	}
	return len(f.SubFields) == 0
}

// jumpPointerWidth is the size of the relative offset written into the
// fixed region for a variable field.
const jumpPointerWidth = 4

// nullPointer marks a variable field's jump pointer as null.
const nullPointer uint32 = 0xFFFFFFFF

// EncodedWidth is the number of bytes a field occupies in the fixed
// region: either its value width (plus a 1-byte null flag if nullable),
// or a jump-pointer slot for variable fields.
func (f *Field) EncodedWidth() int {
	if !f.IsFixed() {
		return jumpPointerWidth
	}
	w := cell.FixedSize(f.Type)
	if f.Nullable {
		w++
	}
	return w
}

// Schema is a registered record shape.
type Schema struct {
	Id           uint32
	Name         string
	KeyField     *string
	Fields       []Field
	StaticBound  int // size of the fixed prefix
	IsDynamic    bool
	IsScannable  bool
	FieldIndex   map[string]*Field
	IdIndex      map[uint64]*Field
	IndexFields  map[uint64]map[IndexKind]bool // field path hash -> index kinds
}

// PathHash digests a fully-qualified field path into the 64-bit key used
// by IdIndex and IndexFields lookups.
func PathHash(path string) uint64 {
	return xxhash.Sum64String(path)
}

// Build finalizes a schema: computes static offsets for fixed fields (in
// declaration order), fills FieldIndex/IdIndex/IndexFields, and determines
// StaticBound. Dynamic schemas (IsDynamic) additionally accept unknown
// trailing fields at read/write time, encoded with the self-describing
// type-tag scheme in this package's codec.
func Build(id uint32, name string, keyField *string, fields []Field, isDynamic bool) (*Schema, error) {
	s := &Schema{
		Id:          id,
		Name:        name,
		KeyField:    keyField,
		IsDynamic:   isDynamic,
		FieldIndex:  make(map[string]*Field),
		IdIndex:     make(map[uint64]*Field),
		IndexFields: make(map[uint64]map[IndexKind]bool),
	}
	offset := 0
	built := make([]Field, len(fields))
	for i := range fields {
		f := fields[i]
		f.PathHash = PathHash(f.Name)
		// Every field owns a fixed-region slot: its value bytes when
		// fixed, a 4-byte jump pointer into the variable tail otherwise.
		f.Offset = offset
		offset += f.EncodedWidth()
		built[i] = f
	}
	s.Fields = built
	s.StaticBound = offset
	for i := range s.Fields {
		f := &s.Fields[i]
		if _, dup := s.FieldIndex[f.Name]; dup {
			return nil, fmt.Errorf("schema %d: duplicate field %q", id, f.Name)
		}
		s.FieldIndex[f.Name] = f
		s.IdIndex[f.PathHash] = f
		if len(f.IndexKinds) > 0 {
			s.IndexFields[f.PathHash] = f.IndexKinds
		}
	}
	s.IsScannable = !isDynamic
	return s, nil
}

// Registry maps schema ids to built schemas, guarded for concurrent reads
// from many chunk goroutines and occasional writes from schema migration.
type Registry struct {
	mu      sync.RWMutex
	schemas map[uint32]*Schema
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[uint32]*Schema)}
}

var ErrSchemaNotFound = fmt.Errorf("schema not found")

func (r *Registry) Register(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Id] = s
}

func (r *Registry) Get(id uint32) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[id]
	if !ok {
		return nil, ErrSchemaNotFound
	}
	return s, nil
}

func (r *Registry) Remove(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schemas, id)
}
