package slab

import (
	"testing"

	nebcell "github.com/shisoft/Nebuchadnezzar/pkg/cell"
	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
	"github.com/shisoft/Nebuchadnezzar/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*schema.Registry, uint32) {
	t.Helper()
	reg := schema.NewRegistry()
	sch, err := schema.Build(1, "widget", nil, []schema.Field{
		{Name: "count", Type: nebcell.TypeI64},
		{Name: "label", Type: nebcell.TypeString},
	}, false)
	require.NoError(t, err)
	reg.Register(sch)
	return reg, sch.Id
}

func TestStoreWriteReadUpdateRemove(t *testing.T) {
	reg, schemaId := newTestRegistry(t)
	store := NewStore(reg, 2, 2, SegmentSize, "")

	id := ids.New(0)
	c := nebcell.Cell{
		Id:     id,
		Header: nebcell.Header{Schema: schemaId},
		Body: map[string]nebcell.Value{
			"count": nebcell.I64Value(1),
			"label": nebcell.StringValue("a"),
		},
	}
	require.NoError(t, store.WriteCell(&c))

	got, err := store.ReadCell(id)
	require.NoError(t, err)
	assert.Equal(t, nebcell.I64Value(1), got.Body["count"])
	assert.Equal(t, nebcell.StringValue("a"), got.Body["label"])

	got.Body["count"] = nebcell.I64Value(2)
	require.NoError(t, store.UpdateCell(&got))

	got, err = store.ReadCell(id)
	require.NoError(t, err)
	assert.Equal(t, nebcell.I64Value(2), got.Body["count"])

	require.NoError(t, store.RemoveCell(id))
	_, err = store.ReadCell(id)
	assert.ErrorIs(t, err, nebcell.ErrCellDoesNotExist)
}

func TestStoreWriteRejectsDuplicateId(t *testing.T) {
	reg, schemaId := newTestRegistry(t)
	store := NewStore(reg, 1, 1, SegmentSize, "")
	id := ids.New(0)
	c := nebcell.Cell{
		Id:     id,
		Header: nebcell.Header{Schema: schemaId},
		Body:   map[string]nebcell.Value{"count": nebcell.I64Value(1), "label": nebcell.StringValue("x")},
	}
	require.NoError(t, store.WriteCell(&c))
	err := store.WriteCell(&c)
	assert.ErrorIs(t, err, nebcell.ErrCellAlreadyExisted)
}

func TestStoreUpdateAndRemoveRequireExistingCell(t *testing.T) {
	reg, schemaId := newTestRegistry(t)
	store := NewStore(reg, 1, 1, SegmentSize, "")
	id := ids.New(0)
	c := nebcell.Cell{Id: id, Header: nebcell.Header{Schema: schemaId}, Body: map[string]nebcell.Value{
		"count": nebcell.I64Value(1), "label": nebcell.StringValue("x"),
	}}
	assert.ErrorIs(t, store.UpdateCell(&c), nebcell.ErrCellDoesNotExist)
	assert.ErrorIs(t, store.RemoveCell(id), nebcell.ErrCellDoesNotExist)
}

// TestSegmentFullFallsThroughToNextSegment: once one segment can no
// longer fit a frame, acquisition moves on to the chunk's other segment,
// and only a chunk with no room anywhere reports full.
func TestSegmentFullFallsThroughToNextSegment(t *testing.T) {
	reg, schemaId := newTestRegistry(t)
	// Frame layout for this schema: 1 flag byte + 1 length byte + 32 header
	// + 12 fixed (i64 + jump pointer) + 4+50 tail = 100 bytes exactly.
	const frame = 100
	store := NewStore(reg, 1, 2, 2*frame+frame/2, "")
	label := string(make([]byte, 50))

	var written []ids.Id
	for i := 0; i < 4; i++ {
		id := ids.New(0)
		c := nebcell.Cell{Id: id, Header: nebcell.Header{Schema: schemaId}, Body: map[string]nebcell.Value{
			"count": nebcell.I64Value(int64(i)), "label": nebcell.StringValue(label),
		}}
		require.NoError(t, store.WriteCell(&c), "write %d", i)
		written = append(written, id)
	}

	overflow := nebcell.Cell{Id: ids.New(0), Header: nebcell.Header{Schema: schemaId}, Body: map[string]nebcell.Value{
		"count": nebcell.I64Value(99), "label": nebcell.StringValue(label),
	}}
	assert.ErrorIs(t, store.WriteCell(&overflow), nebcell.ErrChunkFull)

	for i, id := range written {
		got, err := store.ReadCell(id)
		require.NoError(t, err)
		assert.Equal(t, nebcell.I64Value(int64(i)), got.Body["count"])
	}
}

func TestUpdateCellByAppliesFunctionAndHonorsCancellation(t *testing.T) {
	reg, schemaId := newTestRegistry(t)
	store := NewStore(reg, 1, 1, SegmentSize, "")
	id := ids.New(0)
	c := nebcell.Cell{Id: id, Header: nebcell.Header{Schema: schemaId}, Body: map[string]nebcell.Value{
		"count": nebcell.I64Value(1), "label": nebcell.StringValue("x"),
	}}
	require.NoError(t, store.WriteCell(&c))

	err := store.UpdateCellBy(id, func(cur nebcell.Cell) (nebcell.Cell, bool) {
		cur.Body["count"] = nebcell.I64Value(99)
		return cur, true
	})
	require.NoError(t, err)
	got, err := store.ReadCell(id)
	require.NoError(t, err)
	assert.Equal(t, nebcell.I64Value(99), got.Body["count"])

	err = store.UpdateCellBy(id, func(cur nebcell.Cell) (nebcell.Cell, bool) {
		return cur, false
	})
	assert.ErrorIs(t, err, ErrUserCanceledUpdate)
}
