package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/store"
)

func TestReceiptCacheReplaysWithoutRecomputing(t *testing.T) {
	c, err := store.NewReceiptCache(16)
	require.NoError(t, err)

	instructionCID, err := ipld.ComputeCID(ipld.String("instr"))
	require.NoError(t, err)

	calls := 0
	compute := func(ctx context.Context) (invocation.Receipt, error) {
		calls++
		return invocation.Receipt{Out: invocation.Ok(ipld.Int(1))}, nil
	}

	_, replayed1, err := c.GetOrCompute(context.Background(), instructionCID, compute)
	require.NoError(t, err)
	require.False(t, replayed1)

	_, replayed2, err := c.GetOrCompute(context.Background(), instructionCID, compute)
	require.NoError(t, err)
	require.True(t, replayed2)
	require.Equal(t, 1, calls)
}

func TestDurableStoreWorkflowLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "homestar.db")
	ds, err := store.NewDurableStore(dbPath)
	require.NoError(t, err)
	defer ds.Close()

	ctx := context.Background()

	workflowCID, err := ipld.ComputeCID(ipld.String("workflow"))
	require.NoError(t, err)
	require.NoError(t, ds.PutWorkflow(ctx, workflowCID, "demo", 1))

	instructionCID, err := ipld.ComputeCID(ipld.String("instr"))
	require.NoError(t, err)
	r := invocation.Receipt{Ran: invocation.NewPointer(instructionCID), Out: invocation.Ok(ipld.Int(2))}
	receiptCID, err := ds.PutReceipt(ctx, instructionCID, r)
	require.NoError(t, err)

	require.NoError(t, ds.RecordWorkflowReceipt(ctx, workflowCID, receiptCID))
	// Recording twice must not double-count progress.
	require.NoError(t, ds.RecordWorkflowReceipt(ctx, workflowCID, receiptCID))

	rec, found, err := ds.WorkflowInfo(ctx, workflowCID)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 1, rec.Info.ProgressCount)
	require.True(t, rec.Info.Completed())
	require.Equal(t, store.StatusRunning, rec.Status)

	require.NoError(t, ds.MarkWorkflowCompleted(ctx, workflowCID))
	rec2, _, err := ds.WorkflowInfo(ctx, workflowCID)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, rec2.Status)

	got, ok, err := ds.GetReceipt(ctx, receiptCID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Out.Value.Equal(ipld.Int(2)))
}
