package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/shisoft/Nebuchadnezzar/pkg/btree"
	nebcell "github.com/shisoft/Nebuchadnezzar/pkg/cell"
	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
	"github.com/shisoft/Nebuchadnezzar/pkg/lsm"
	"github.com/shisoft/Nebuchadnezzar/pkg/schema"
	"github.com/shisoft/Nebuchadnezzar/pkg/slab"
	"github.com/shisoft/Nebuchadnezzar/pkg/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSchema(t *testing.T) (*schema.Registry, uint32) {
	t.Helper()
	reg := schema.NewRegistry()
	sch, err := schema.Build(1, "widget", nil, []schema.Field{
		{Name: "count", Type: nebcell.TypeI64},
	}, false)
	require.NoError(t, err)
	reg.Register(sch)
	return reg, sch.Id
}

func TestLocalCellServiceRoundTrips(t *testing.T) {
	reg, schemaId := newTestSchema(t)
	store := slab.NewStore(reg, 4, 4, slab.SegmentSize, "")
	svc := NewLocalCellService(store)
	ctx := context.Background()

	id := ids.New(0)
	c := nebcell.Cell{
		Id:     id,
		Header: nebcell.Header{Schema: schemaId},
		Body:   map[string]nebcell.Value{"count": nebcell.I64Value(1)},
	}

	_, err := svc.WriteCell(ctx, c)
	require.NoError(t, err)

	got, err := svc.ReadCell(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, nebcell.I64Value(1), got.Body["count"])

	got.Body["count"] = nebcell.I64Value(2)
	_, err = svc.UpdateCell(ctx, got)
	require.NoError(t, err)

	got, err = svc.ReadCell(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, nebcell.I64Value(2), got.Body["count"])

	require.NoError(t, svc.RemoveCell(ctx, id))
	_, err = svc.ReadCell(ctx, id)
	assert.Error(t, err)
}

func TestLocalTransactionServiceCommitsAcrossSteps(t *testing.T) {
	reg, schemaId := newTestSchema(t)
	store := slab.NewStore(reg, 4, 4, slab.SegmentSize, "")
	site := txn.NewDataSite(store)
	manager := txn.NewManager(txn.SingleSiteRouter(site))
	svc := NewLocalTransactionService(manager)
	ctx := context.Background()

	id := ids.New(0)
	tid, err := svc.Begin(ctx)
	require.NoError(t, err)

	w := svc.Write(ctx, tid, nebcell.Cell{
		Id:     id,
		Header: nebcell.Header{Schema: schemaId},
		Body:   map[string]nebcell.Value{"count": nebcell.I64Value(5)},
	})
	require.True(t, w.Ok())

	prep := svc.Prepare(ctx, tid)
	assert.Equal(t, txn.PrepareSuccess, prep.Vote)

	end := svc.Commit(ctx, tid)
	assert.Equal(t, txn.EndCommitted, end)

	read := svc.Read(ctx, tid, id)
	assert.False(t, read.Ok(), "transaction map no longer has tid after commit")

	direct := NewLocalCellService(store)
	got, err := direct.ReadCell(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, nebcell.I64Value(5), got.Body["count"])
}

func TestLocalLSMTreeServiceLifecycle(t *testing.T) {
	svc := NewLocalLSMTreeService(50 * time.Millisecond)
	ctx := context.Background()
	treeId := ids.New(0)
	boundary := lsm.Placement{TreeId: treeId, Lower: btree.EntryKey{0x00}, Upper: btree.EntryKey{0xff}}

	require.NoError(t, svc.CreateTree(ctx, treeId, boundary))
	assert.Error(t, svc.CreateTree(ctx, treeId, boundary), "duplicate create should fail")

	k1 := btree.EntryKey{0x01}
	k2 := btree.EntryKey{0x02}
	assert.True(t, svc.Insert(ctx, treeId, k1).Ok)
	assert.True(t, svc.Insert(ctx, treeId, k2).Ok)

	outOfBound := btree.EntryKey{0xff, 0xff}
	res := svc.Insert(ctx, treeId, outOfBound)
	assert.False(t, res.Ok)
	assert.Equal(t, ErrOutOfBound, res.Err)

	seek := svc.Seek(ctx, treeId, btree.EntryKey{0x00}, btree.Forward, 0)
	require.True(t, seek.Ok)
	handle := seek.Value

	block, ok := svc.CursorNext(ctx, handle, 10)
	require.True(t, ok)
	assert.Len(t, block.Keys, 2)

	assert.True(t, svc.RenewCursor(ctx, handle))
	svc.DisposeCursor(ctx, handle)
	assert.False(t, svc.RenewCursor(ctx, handle))

	missing := svc.Insert(ctx, ids.New(1), k1)
	assert.Equal(t, ErrTreeNotFound, missing.Err)
}
