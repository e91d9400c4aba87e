package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/network"
	"github.com/ipvm-wg/homestar/sandbox"
	"github.com/ipvm-wg/homestar/store"
	"github.com/ipvm-wg/homestar/workflow"
)

// Replicator is the subset of *network.Network a Worker needs to
// distribute receipts and workflow progress. It is declared narrowly here
// (rather than importing *network.Network directly into call sites) so
// tests can supply a fake without standing up a libp2p host.
type Replicator interface {
	PublishReceipt(ctx context.Context, r invocation.Receipt) error
	PutReceipt(ctx context.Context, r invocation.Receipt) (cid.Cid, error)
	GetReceipt(ctx context.Context, instructionCID cid.Cid) (invocation.Receipt, error)
	PutWorkflowInfo(ctx context.Context, info workflow.Info) error
	GetWorkflowInfo(ctx context.Context, workflowCID cid.Cid) (workflow.Info, error)
}

var _ Replicator = (*network.Network)(nil)

// Deps bundles everything a Worker needs to execute a workflow.
type Deps struct {
	Log        zerolog.Logger
	Executor   Executor
	Signatures SignatureResolver
	Cache      *store.ReceiptCache
	Durable    *store.DurableStore
	Network    Replicator // nil disables gossip/DHT replication (single-node mode)
	Issuer     invocation.IssuerDID
	Sign       func([]byte) ([]byte, error) // not called by Worker; receipts are built unsigned
	Concurrency int                          // per-batch concurrency cap; <1 means 1
}

func (d Deps) concurrency() int {
	if d.Concurrency < 1 {
		return 1
	}
	return d.Concurrency
}

// Worker executes one workflow to completion (or until it gets stuck or is
// cancelled), batch by batch, per the schedule workflow.Analyze produces.
type Worker struct {
	deps Deps
}

// New builds a Worker.
func New(deps Deps) *Worker {
	return &Worker{deps: deps}
}

// Result is what Run returns: the final workflow.Info plus a set of
// per-task outcomes for observability.
type Result struct {
	Info   workflow.Info
	States []TaskState // parallel to wf.Tasks
	Status WorkflowState
}

// Run executes wf to completion. It returns a non-nil error only for a
// scheduling-level failure (cyclic workflow, context cancellation); a task
// that fails at the sandbox layer still produces an Error receipt and
// Run returns normally with that task's state set to TaskFailed or
// TaskExecuted-with-error-output as appropriate.
func (w *Worker) Run(ctx context.Context, wf workflow.Workflow) (Result, error) {
	workflowCID, err := wf.CID()
	if err != nil {
		return Result{}, fmt.Errorf("worker: compute workflow cid: %w", err)
	}

	schedule, err := workflow.Analyze(wf)
	if err != nil {
		return Result{}, err
	}

	if w.deps.Durable != nil {
		if err := w.deps.Durable.PutWorkflow(ctx, workflowCID, wf.Name, wf.NumTasks()); err != nil {
			return Result{}, fmt.Errorf("worker: record workflow: %w", err)
		}
	}

	info := workflow.NewInfo(workflowCID, wf.Name, wf.NumTasks())
	states := make([]TaskState, len(wf.Tasks))
	for i := range states {
		states[i] = TaskWaiting
	}

	resultsByInstructionCID := make(map[cid.Cid]invocation.Receipt)
	var resultsMu sync.Mutex

	for _, batch := range schedule.Batches {
		select {
		case <-ctx.Done():
			return w.markCancelled(ctx, wf, info, states, batch), ctx.Err()
		default:
		}

		type outcome struct {
			idx     int
			state   TaskState
			receipt *invocation.Receipt
			err     error
		}
		outcomes := make([]outcome, len(batch))

		g := new(errgroup.Group)
		g.SetLimit(w.deps.concurrency())

		for pos, idx := range batch {
			pos, idx := pos, idx
			g.Go(func() error {
				states[idx] = TaskReady
				task := wf.Tasks[idx]

				resultsMu.Lock()
				resolvedArgs, resolveErr := resolveArguments(ctx, w.deps, task, resultsByInstructionCID)
				resultsMu.Unlock()
				if resolveErr != nil {
					outcomes[pos] = outcome{idx: idx, state: TaskFailed, err: resolveErr}
					return nil
				}

				states[idx] = TaskRunning
				receipt, state, err := w.dispatch(ctx, task, resolvedArgs)
				outcomes[pos] = outcome{idx: idx, state: state, receipt: receipt, err: err}
				return nil
			})
		}
		_ = g.Wait() // task-level failures are carried in outcomes, never returned to the group

		for _, o := range outcomes {
			states[o.idx] = o.state
			if o.state == TaskCancelled {
				return w.markCancelled(ctx, wf, info, states, nil), ctx.Err()
			}
			if o.err != nil {
				w.deps.Log.Warn().Err(o.err).Int("task", o.idx).Msg("worker: task failed")
				continue
			}
			if o.receipt == nil {
				continue
			}
			instrCID, err := wf.Tasks[o.idx].InstructionCID()
			if err != nil {
				continue
			}
			resultsMu.Lock()
			resultsByInstructionCID[instrCID] = *o.receipt
			resultsMu.Unlock()

			receiptCID, err := o.receipt.CID()
			if err != nil {
				continue
			}
			info = info.WithReceipt(receiptCID)
			if w.deps.Durable != nil {
				if _, err := w.deps.Durable.PutReceipt(ctx, instrCID, *o.receipt); err != nil {
					w.deps.Log.Warn().Err(err).Msg("worker: durable receipt write failed")
				}
				if err := w.deps.Durable.RecordWorkflowReceipt(ctx, workflowCID, receiptCID); err != nil {
					w.deps.Log.Warn().Err(err).Msg("worker: durable workflow-receipt link failed")
				}
			}
		}

		if w.deps.Network != nil {
			if err := w.deps.Network.PutWorkflowInfo(ctx, info); err != nil {
				w.deps.Log.Warn().Err(err).Msg("worker: dht workflow-info put failed")
			}
		}
	}

	status := WorkflowRunning
	for _, s := range states {
		if s == TaskFailed {
			status = WorkflowStuck
		}
	}
	if status == WorkflowRunning && info.Completed() {
		status = WorkflowCompleted
	}
	if w.deps.Durable != nil {
		switch status {
		case WorkflowCompleted:
			_ = w.deps.Durable.MarkWorkflowCompleted(ctx, workflowCID)
		case WorkflowStuck:
			_ = w.deps.Durable.MarkWorkflowStuck(ctx, workflowCID, fmt.Errorf("one or more tasks failed"))
		}
	}

	return Result{Info: info, States: states, Status: status}, nil
}

func (w *Worker) markCancelled(_ context.Context, _ workflow.Workflow, info workflow.Info, states []TaskState, _ []int) Result {
	for i := range states {
		if !states[i].terminal() {
			states[i] = TaskCancelled
		}
	}
	return Result{Info: info, States: states, Status: WorkflowRunning}
}

// executionFailure carries a built error-receipt out of dispatch's compute
// closure without letting ReceiptCache.GetOrCompute cache it: GetOrCompute
// only caches a compute call that returns a nil error, and an error receipt
// (the sandbox rejected the task, as opposed to the batch being cancelled)
// must remain replayable as a fresh attempt rather than pinned in the cache
// forever.
type executionFailure struct {
	receipt invocation.Receipt
	err     error
}

func (e *executionFailure) Error() string { return e.err.Error() }
func (e *executionFailure) Unwrap() error { return e.err }

// dispatch performs steps 1-6 of §4.5's per-task algorithm for one task
// whose await-arguments have already been resolved to literals.
// GetOrCompute provides step 2's local-cache check and the in-flight
// exclusion §8 requires: two tasks in the same batch that carry the same
// instruction CID must invoke the sandbox at most once between them, with
// the second waiting on the first's result rather than racing it.
func (w *Worker) dispatch(ctx context.Context, task invocation.Task, resolvedArgs []ipld.Value) (*invocation.Receipt, TaskState, error) {
	instrCID, err := task.InstructionCID()
	if err != nil {
		return nil, TaskFailed, err
	}

	var viaDHT bool
	compute := func(ctx context.Context) (invocation.Receipt, error) {
		// Step 3: DHT, time-bounded so a slow/absent network never stalls
		// the batch indefinitely.
		if w.deps.Network != nil {
			dhtCtx, cancel := contextWithShortTimeout(ctx)
			r, err := w.deps.Network.GetReceipt(dhtCtx, instrCID)
			cancel()
			if err == nil {
				viaDHT = true
				return r, nil
			}
		}

		// Step 5: fetch, instantiate, invoke.
		sig, err := w.deps.Signatures.Resolve(ctx, task.Run.Resource, task.Run.Func)
		if err != nil {
			return invocation.Receipt{}, err
		}

		sandboxTask := sandbox.Task{
			Export:    task.Run.Func,
			Signature: sig,
			Args:      resolvedArgs,
			Resources: task.Meta,
		}

		result, err := w.deps.Executor.Execute(ctx, task.Run.Resource, sandboxTask)
		if err != nil {
			var sErr *sandbox.Error
			if isCancelled(err, &sErr) {
				return invocation.Receipt{}, err
			}
			receipt := w.buildReceipt(task, invocation.Err(ipld.String(err.Error())))
			return invocation.Receipt{}, &executionFailure{receipt: receipt, err: err}
		}

		return w.buildReceipt(task, invocation.Ok(result)), nil
	}

	receipt, replayed, err := w.deps.Cache.GetOrCompute(ctx, instrCID, compute)
	if err != nil {
		var sErr *sandbox.Error
		if isCancelled(err, &sErr) {
			return nil, TaskCancelled, err
		}
		var execErr *executionFailure
		if errors.As(err, &execErr) {
			return &execErr.receipt, TaskExecuted, nil
		}
		return nil, TaskFailed, err
	}

	if replayed || viaDHT {
		return &receipt, TaskReplayed, nil
	}

	// Step 6: gossip, DHT-put. GetOrCompute already stored the receipt in
	// the local cache as part of resolving this call.
	if w.deps.Network != nil {
		if err := w.deps.Network.PublishReceipt(ctx, receipt); err != nil {
			w.deps.Log.Warn().Err(err).Msg("worker: gossip publish failed")
		}
		if _, err := w.deps.Network.PutReceipt(ctx, receipt); err != nil {
			w.deps.Log.Warn().Err(err).Msg("worker: dht put failed")
		}
	}

	return &receipt, TaskExecuted, nil
}

func (w *Worker) buildReceipt(task invocation.Task, out invocation.Output) invocation.Receipt {
	instrCID, _ := task.InstructionCID()
	r := invocation.Receipt{
		Ran: invocation.NewPointer(instrCID),
		Out: out,
	}
	if w.deps.Issuer != "" {
		issuer := w.deps.Issuer
		r.Issuer = &issuer
	}
	return r
}

func isCancelled(err error, target **sandbox.Error) bool {
	if e, ok := err.(*sandbox.Error); ok {
		*target = e
		return e.Kind == sandbox.FailureCancelled
	}
	return false
}
