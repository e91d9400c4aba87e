package worker_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/sandbox"
	"github.com/ipvm-wg/homestar/store"
	"github.com/ipvm-wg/homestar/wit"
	"github.com/ipvm-wg/homestar/worker"
	"github.com/ipvm-wg/homestar/workflow"
)

// fakeExecutor echoes its first argument back with a suffix appended,
// letting tests observe both dispatch and promise resolution without a
// real wasmtime engine.
type fakeExecutor struct {
	calls int
	fail  bool
}

func (f *fakeExecutor) Execute(ctx context.Context, resource invocation.Resource, task sandbox.Task) (ipld.Value, error) {
	f.calls++
	if f.fail {
		return ipld.Value{}, &sandbox.Error{Kind: sandbox.FailureTrap, Err: fmt.Errorf("boom")}
	}
	s, _ := task.Args[0].AsString()
	return ipld.String(s + "-done"), nil
}

// blockingExecutor holds Execute open until release is closed, letting a
// test observe whether two dispatches for the same instruction CID ever
// run concurrently.
type blockingExecutor struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *blockingExecutor) Execute(ctx context.Context, resource invocation.Resource, task sandbox.Task) (ipld.Value, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.started <- struct{}{}
	<-f.release
	s, _ := task.Args[0].AsString()
	return ipld.String(s + "-done"), nil
}

func newDeps(t *testing.T, exec worker.Executor) worker.Deps {
	t.Helper()
	cache, err := store.NewReceiptCache(16)
	require.NoError(t, err)
	durable, err := store.NewDurableStore(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = durable.Close() })

	sigs := worker.NewStaticSignatureRegistry()
	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)
	sigs.Register(resource, "a", sandbox.Signature{Params: []wit.Type{wit.String()}, Result: wit.String()})
	sigs.Register(resource, "b", sandbox.Signature{Params: []wit.Type{wit.String()}, Result: wit.String()})

	return worker.Deps{
		Log:        zerolog.Nop(),
		Executor:   exec,
		Signatures: sigs,
		Cache:      cache,
		Durable:    durable,
	}
}

func buildLinearWorkflow(t *testing.T) (workflow.Workflow, invocation.Resource) {
	t.Helper()
	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)

	instrA, err := invocation.NewInstruction(resource, "a", []invocation.Argument{
		invocation.ArgLiteral(ipld.String("start")),
	}, nil)
	require.NoError(t, err)
	cidA, err := instrA.CID()
	require.NoError(t, err)

	instrB, err := invocation.NewInstruction(resource, "b", []invocation.Argument{
		invocation.ArgAwait(invocation.AwaitOK, invocation.NewPointer(cidA)),
	}, nil)
	require.NoError(t, err)

	return workflow.Workflow{
		Name: "linear",
		Tasks: []invocation.Task{
			{Run: instrA},
			{Run: instrB},
		},
	}, resource
}

func TestWorkerRunsBatchesInOrderAndResolvesAwaits(t *testing.T) {
	exec := &fakeExecutor{}
	deps := newDeps(t, exec)
	wf, _ := buildLinearWorkflow(t)

	result, err := worker.New(deps).Run(context.Background(), wf)
	require.NoError(t, err)
	require.Equal(t, worker.WorkflowCompleted, result.Status)
	require.Equal(t, []worker.TaskState{worker.TaskExecuted, worker.TaskExecuted}, result.States)
	require.Equal(t, 2, exec.calls)
	require.True(t, result.Info.Completed())
}

func TestWorkerReplaysFromCacheWithoutReexecuting(t *testing.T) {
	exec := &fakeExecutor{}
	deps := newDeps(t, exec)
	wf, _ := buildLinearWorkflow(t)

	_, err := worker.New(deps).Run(context.Background(), wf)
	require.NoError(t, err)
	require.Equal(t, 2, exec.calls)

	result, err := worker.New(deps).Run(context.Background(), wf)
	require.NoError(t, err)
	require.Equal(t, 2, exec.calls) // no new executions; both replayed from cache
	require.Equal(t, []worker.TaskState{worker.TaskReplayed, worker.TaskReplayed}, result.States)
}

func TestWorkerSandboxFailureProducesErrorReceiptAndContinues(t *testing.T) {
	exec := &fakeExecutor{fail: true}
	deps := newDeps(t, exec)

	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)
	instrA, err := invocation.NewInstruction(resource, "a", []invocation.Argument{
		invocation.ArgLiteral(ipld.String("x")),
	}, nil)
	require.NoError(t, err)
	cidA, err := instrA.CID()
	require.NoError(t, err)

	instrB, err := invocation.NewInstruction(resource, "b", []invocation.Argument{
		invocation.ArgAwait(invocation.AwaitError, invocation.NewPointer(cidA)),
	}, nil)
	require.NoError(t, err)

	wf := workflow.Workflow{Tasks: []invocation.Task{{Run: instrA}, {Run: instrB}}}

	result, err := worker.New(deps).Run(context.Background(), wf)
	require.NoError(t, err)
	require.Equal(t, worker.TaskExecuted, result.States[0])
	require.Equal(t, worker.TaskExecuted, result.States[1])
}

// TestWorkerDedupesConcurrentDispatchOfSameInstruction exercises §8's
// replay invariant under concurrency, not just sequentially across two
// Run calls: two tasks in one batch that carry the identical instruction
// CID must invoke the sandbox at most once between them.
func TestWorkerDedupesConcurrentDispatchOfSameInstruction(t *testing.T) {
	exec := &blockingExecutor{started: make(chan struct{}), release: make(chan struct{})}
	deps := newDeps(t, exec)
	deps.Concurrency = 2

	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)
	instr, err := invocation.NewInstruction(resource, "a", []invocation.Argument{
		invocation.ArgLiteral(ipld.String("x")),
	}, nil)
	require.NoError(t, err)

	wf := workflow.Workflow{Tasks: []invocation.Task{{Run: instr}, {Run: instr}}}

	type runOutcome struct {
		result worker.Result
		err    error
	}
	done := make(chan runOutcome, 1)
	go func() {
		result, err := worker.New(deps).Run(context.Background(), wf)
		done <- runOutcome{result: result, err: err}
	}()

	<-exec.started
	select {
	case <-exec.started:
		t.Fatal("sandbox executed twice concurrently for the same instruction CID")
	case <-time.After(50 * time.Millisecond):
	}
	close(exec.release)

	out := <-done
	require.NoError(t, out.err)
	require.Equal(t, 1, exec.calls)
	require.Contains(t, out.result.States, worker.TaskExecuted)
	require.Contains(t, out.result.States, worker.TaskReplayed)
}

func TestWorkerAwaitOKOnErrorReceiptFails(t *testing.T) {
	exec := &fakeExecutor{fail: true}
	deps := newDeps(t, exec)

	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)
	instrA, err := invocation.NewInstruction(resource, "a", []invocation.Argument{
		invocation.ArgLiteral(ipld.String("x")),
	}, nil)
	require.NoError(t, err)
	cidA, err := instrA.CID()
	require.NoError(t, err)

	instrB, err := invocation.NewInstruction(resource, "b", []invocation.Argument{
		invocation.ArgAwait(invocation.AwaitOK, invocation.NewPointer(cidA)),
	}, nil)
	require.NoError(t, err)

	wf := workflow.Workflow{Tasks: []invocation.Task{{Run: instrA}, {Run: instrB}}}

	result, err := worker.New(deps).Run(context.Background(), wf)
	require.NoError(t, err)
	require.Equal(t, worker.TaskExecuted, result.States[0])
	require.Equal(t, worker.TaskFailed, result.States[1])
	require.Equal(t, worker.WorkflowStuck, result.Status)
}
