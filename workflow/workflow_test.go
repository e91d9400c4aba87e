package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/workflow"
)

func mustResource(t *testing.T, raw string) invocation.Resource {
	t.Helper()
	r, err := invocation.ParseResource(raw)
	require.NoError(t, err)
	return r
}

// TestAnalyzePromisePipeline mirrors §8 scenario 2: task A crops an image,
// task B rotates A's output. B must land strictly after A.
func TestAnalyzePromisePipeline(t *testing.T) {
	resource := mustResource(t, "ipfs://bafybeidbyqpmztqkeot33lz4ev2ftjhqrnbh67go56tlgbf7qmy5xyzvg4")

	instrA, err := invocation.NewInstruction(resource, "crop", []invocation.Argument{
		invocation.ArgLiteral(ipld.Int(150)),
		invocation.ArgLiteral(ipld.Int(350)),
		invocation.ArgLiteral(ipld.Int(500)),
		invocation.ArgLiteral(ipld.Int(500)),
	}, nil)
	require.NoError(t, err)
	cidA, err := instrA.CID()
	require.NoError(t, err)

	instrB, err := invocation.NewInstruction(resource, "rotate90", []invocation.Argument{
		invocation.ArgAwait(invocation.AwaitOK, invocation.NewPointer(cidA)),
	}, nil)
	require.NoError(t, err)

	w := workflow.Workflow{Tasks: []invocation.Task{
		{Run: instrA},
		{Run: instrB},
	}}

	sched, err := workflow.Analyze(w)
	require.NoError(t, err)
	require.Len(t, sched.Batches, 2)
	require.Equal(t, []int{0}, sched.Batches[0])
	require.Equal(t, []int{1}, sched.Batches[1])
}

func TestAnalyzeIndependentTasksShareABatch(t *testing.T) {
	resource := mustResource(t, "https://example.com/f.wasm")
	instrA, err := invocation.NewInstruction(resource, "f", nil, nil)
	require.NoError(t, err)
	instrB, err := invocation.NewInstruction(resource, "g", nil, nil)
	require.NoError(t, err)

	w := workflow.Workflow{Tasks: []invocation.Task{{Run: instrA}, {Run: instrB}}}
	sched, err := workflow.Analyze(w)
	require.NoError(t, err)
	require.Len(t, sched.Batches, 1)
	require.ElementsMatch(t, []int{0, 1}, sched.Batches[0])
}

func TestAnalyzeDetectsCycle(t *testing.T) {
	resource := mustResource(t, "https://example.com/f.wasm")

	// B's instruction CID must exist before A's instruction can await it,
	// but A's instruction CID must exist before B's instruction can await
	// it in turn — construct B first as a placeholder, derive A from B's
	// real CID, then rebuild B to await A's real CID, producing a genuine
	// two-node cycle for the DAG builder to reject.
	placeholderB, err := invocation.NewInstruction(resource, "b", nil, nil)
	require.NoError(t, err)
	placeholderCIDB, err := placeholderB.CID()
	require.NoError(t, err)

	instrA, err := invocation.NewInstruction(resource, "a", []invocation.Argument{
		invocation.ArgAwait(invocation.AwaitOK, invocation.NewPointer(placeholderCIDB)),
	}, nil)
	require.NoError(t, err)
	cidA, err := instrA.CID()
	require.NoError(t, err)

	instrB, err := invocation.NewInstruction(resource, "b", []invocation.Argument{
		invocation.ArgAwait(invocation.AwaitOK, invocation.NewPointer(cidA)),
	}, nil)
	require.NoError(t, err)
	cidB, err := instrB.CID()
	require.NoError(t, err)

	// Rebuild A so its await points at B's real (final) CID, closing the cycle.
	instrA2, err := invocation.NewInstruction(resource, "a", []invocation.Argument{
		invocation.ArgAwait(invocation.AwaitOK, invocation.NewPointer(cidB)),
	}, nil)
	require.NoError(t, err)

	w := workflow.Workflow{Tasks: []invocation.Task{
		{Run: instrA2},
		{Run: instrB},
	}}

	_, err = workflow.Analyze(w)
	require.ErrorIs(t, err, workflow.ErrCyclicWorkflow)
}

func TestWorkflowInfoProgressIsMonotone(t *testing.T) {
	c, err := ipld.ComputeCID(ipld.String("workflow"))
	require.NoError(t, err)
	info := workflow.NewInfo(c, "demo", 2)
	require.False(t, info.Completed())

	r1, err := ipld.ComputeCID(ipld.String("r1"))
	require.NoError(t, err)
	info = info.WithReceipt(r1)
	require.EqualValues(t, 1, info.ProgressCount)

	// Adding the same receipt again must not grow progress.
	info = info.WithReceipt(r1)
	require.EqualValues(t, 1, info.ProgressCount)

	r2, err := ipld.ComputeCID(ipld.String("r2"))
	require.NoError(t, err)
	info = info.WithReceipt(r2)
	require.True(t, info.Completed())
}
