package runner_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/runner"
	"github.com/ipvm-wg/homestar/sandbox"
	"github.com/ipvm-wg/homestar/store"
	"github.com/ipvm-wg/homestar/wit"
	"github.com/ipvm-wg/homestar/worker"
	"github.com/ipvm-wg/homestar/workflow"
)

type echoExecutor struct{}

func (echoExecutor) Execute(ctx context.Context, resource invocation.Resource, task sandbox.Task) (ipld.Value, error) {
	s, _ := task.Args[0].AsString()
	return ipld.String(s + "-done"), nil
}

func newTestRunner(t *testing.T) *runner.Runner {
	t.Helper()
	cache, err := store.NewReceiptCache(16)
	require.NoError(t, err)
	durable, err := store.NewDurableStore(filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = durable.Close() })

	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)
	sigs := worker.NewStaticSignatureRegistry()
	sigs.Register(resource, "identity", sandbox.Signature{Params: []wit.Type{wit.String()}, Result: wit.String()})

	return runner.New(zerolog.Nop(), nil, func() worker.Deps {
		return worker.Deps{
			Log:        zerolog.Nop(),
			Executor:   echoExecutor{},
			Signatures: sigs,
			Cache:      cache,
			Durable:    durable,
		}
	})
}

func oneTaskWorkflow(t *testing.T) workflow.Workflow {
	t.Helper()
	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)
	instr, err := invocation.NewInstruction(resource, "identity", []invocation.Argument{
		invocation.ArgLiteral(ipld.String("hi")),
	}, nil)
	require.NoError(t, err)
	return workflow.Workflow{Name: "single", Tasks: []invocation.Task{{Run: instr}}}
}

func TestRunnerRunEmitsAcceptedAndFinishedEvents(t *testing.T) {
	r := newTestRunner(t)
	events, cancel := r.Subscribe(16)
	defer cancel()

	wf := oneTaskWorkflow(t)
	workflowCID, result, err := r.Run(context.Background(), wf)
	require.NoError(t, err)
	require.Equal(t, worker.WorkflowCompleted, result.Status)

	seen := map[runner.EventKind]bool{}
	timeout := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case e := <-events:
			seen[e.Kind] = true
			if e.Kind == runner.EventKindReceiptNotified {
				require.Equal(t, workflowCID, e.WorkflowCID)
				require.False(t, e.Replayed)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for events, saw %v", seen)
		}
	}
	require.True(t, seen[runner.EventKindWorkflowAccepted])
	require.True(t, seen[runner.EventKindReceiptNotified])
	require.True(t, seen[runner.EventKindWorkflowFinished])
}

func TestRunnerSubmitParsesDAGJSONAndReplaysOnResubmit(t *testing.T) {
	r := newTestRunner(t)

	raw := []byte(`{"tasks":[{"run":{"rsc":"https://example.com/f.wasm","op":"wasm/run","input":{"func":"identity","args":["hi"]},"nnc":""},"meta":{},"prf":[]}]}`)

	workflowCID, result, err := r.Submit(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, worker.TaskExecuted, result.States[0])

	status, ok := r.Status(workflowCID)
	require.True(t, ok)
	require.Equal(t, worker.WorkflowCompleted, status)

	_, result2, err := r.Submit(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, worker.TaskReplayed, result2.States[0])
}

func TestRunnerSubmitRejectsMalformedSubmission(t *testing.T) {
	r := newTestRunner(t)
	_, _, err := r.Submit(context.Background(), []byte(`{"tasks":[]}`))
	require.Error(t, err)
}

func TestParseSubmissionRoundTripsReceiptNotification(t *testing.T) {
	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)
	instr, err := invocation.NewInstruction(resource, "identity", []invocation.Argument{
		invocation.ArgLiteral(ipld.String("hi")),
	}, nil)
	require.NoError(t, err)
	instrCID, err := instr.CID()
	require.NoError(t, err)

	receipt := invocation.Receipt{Ran: invocation.NewPointer(instrCID), Out: invocation.Ok(ipld.String("hi-done"))}
	payload, err := runner.EncodeReceiptNotification("identity", false, receipt)
	require.NoError(t, err)

	v, err := ipld.DecodeDAGJSON(payload)
	require.NoError(t, err)
	m, ok := v.AsMap()
	require.True(t, ok)
	meta, ok := m["metadata"].AsMap()
	require.True(t, ok)
	name, _ := meta["name"].AsString()
	require.Equal(t, "identity", name)
}
