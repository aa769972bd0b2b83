package stats

import (
	"context"
	"testing"
	"time"

	nebcell "github.com/shisoft/Nebuchadnezzar/pkg/cell"
	"github.com/shisoft/Nebuchadnezzar/pkg/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerPublishesSnapshotOnDemandAndOnTick(t *testing.T) {
	store, schemaId := newTestStore(t)
	r := NewRunner(store)
	require.NotNil(t, r.Latest())
	assert.Empty(t, r.Latest().Schemas, "no cells written yet")

	require.NoError(t, store.WriteCell(&nebcell.Cell{
		Id:     ids.New(0),
		Header: nebcell.Header{Schema: schemaId},
		Body:   map[string]nebcell.Value{"age": nebcell.U32Value(1), "name": nebcell.StringValue("a")},
	}))
	r.RunOnce()
	assert.Equal(t, 1, r.Latest().Schemas[schemaId].CellCount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()
	// Starting twice must be a no-op, not a second goroutine.
	r.Start(ctx)
	time.Sleep(10 * time.Millisecond)
}
