package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"github.com/ipvm-wg/homestar/component"
	"github.com/ipvm-wg/homestar/irrecoverable"
	"github.com/ipvm-wg/homestar/network"
	"github.com/ipvm-wg/homestar/worker"
	"github.com/ipvm-wg/homestar/workflow"
)

// WorkerFactory builds the worker.Deps used for one workflow run. The
// runner calls it once per Submit, letting the caller vary concurrency
// or issuer per submission while sharing the underlying cache/store/
// network/executor instances.
type WorkerFactory func() worker.Deps

// Runner is the top-level supervisor (§2, §6): it owns the network
// component, accepts workflow submissions, spawns a Worker per submission,
// and republishes network events and per-task receipt notifications on a
// single Event bus. It implements component.Component by embedding a
// ComponentManager whose one worker pumps network.Network's own event
// channel; the network component itself is started/stopped alongside it.
type Runner struct {
	log     zerolog.Logger
	net     *network.Network
	newDeps WorkerFactory

	bus *bus

	mu      sync.Mutex
	running map[cid.Cid]worker.WorkflowState

	*component.ComponentManager
}

// New builds a Runner. net may be nil for a single-node configuration with
// no gossip/DHT replication; newDeps still must produce a worker.Deps with
// a Network field consistent with that choice.
func New(log zerolog.Logger, net *network.Network, newDeps WorkerFactory) *Runner {
	r := &Runner{
		log:     log.With().Str("component", "runner").Logger(),
		net:     net,
		newDeps: newDeps,
		bus:     newBus(),
		running: make(map[cid.Cid]worker.WorkflowState),
	}

	workers := []component.Worker{r.busWorker}
	if net != nil {
		workers = append(workers, r.networkEventWorker, r.networkWorker)
	}
	r.ComponentManager = component.NewComponentManager(workers...)
	return r
}

// networkWorker starts the embedded network.Network as a nested component
// and waits out its own lifetime, so the runner's Ready/Done reflect the
// network's readiness/shutdown too.
func (r *Runner) networkWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	r.net.Start(ctx)
	<-r.net.Ready()
	ready()
	<-ctx.Done()
	<-r.net.Done()
}

// busWorker's only job is to close the event bus once the runner shuts
// down; the bus's own dispatch goroutine is started eagerly by newBus so
// Subscribe/Run work even before the runner's component lifecycle starts.
func (r *Runner) busWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	<-ctx.Done()
	r.bus.Close()
}

// networkEventWorker isn't actually how *network.Network starts (it starts
// itself via networkWorker above); this worker only pumps its
// event channel onto the runner's bus.
func (r *Runner) networkEventWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-r.net.Events():
			if !ok {
				return
			}
			ev := e
			r.bus.emit(Event{Kind: EventKindNetwork, Time: ev.Time, Network: &ev})
		}
	}
}

// Subscribe returns a channel of future Events (buffered by buffer) and a
// cancel func to stop delivery.
func (r *Runner) Subscribe(buffer int) (<-chan Event, func()) {
	return r.bus.Subscribe(buffer)
}

// Submit parses a §6 workflow submission, runs it to completion, and
// returns its workflow CID and final worker.Result. It emits
// EventKindWorkflowAccepted immediately; once the worker's Run returns,
// one EventKindReceiptNotified per executed or replayed task, then
// EventKindWorkflowFinished.
//
// Submit blocks for the duration of the run; callers that want fire-and-
// forget semantics should invoke it in their own goroutine and observe
// progress via Subscribe.
func (r *Runner) Submit(ctx context.Context, raw []byte) (cid.Cid, worker.Result, error) {
	wf, err := ParseSubmission(raw)
	if err != nil {
		return cid.Undef, worker.Result{}, err
	}
	return r.Run(ctx, wf)
}

// Run executes an already-decoded workflow, following the same event
// emission and bookkeeping as Submit.
func (r *Runner) Run(ctx context.Context, wf workflow.Workflow) (cid.Cid, worker.Result, error) {
	workflowCID, err := wf.CID()
	if err != nil {
		return cid.Undef, worker.Result{}, fmt.Errorf("runner: compute workflow cid: %w", err)
	}

	r.mu.Lock()
	r.running[workflowCID] = worker.WorkflowRunning
	r.mu.Unlock()
	r.bus.emit(Event{Kind: EventKindWorkflowAccepted, WorkflowCID: workflowCID, Status: worker.WorkflowRunning})

	deps := r.newDeps()
	result, err := worker.New(deps).Run(ctx, wf)

	r.emitReceiptNotifications(workflowCID, wf, deps, result)

	r.mu.Lock()
	r.running[workflowCID] = result.Status
	r.mu.Unlock()
	r.bus.emit(Event{Kind: EventKindWorkflowFinished, WorkflowCID: workflowCID, Status: result.Status, Err: err})

	return workflowCID, result, err
}

// emitReceiptNotifications reports the §6 "receipt notification" event for
// every task that reached a terminal executed-or-replayed state, reading
// the receipt back out of the shared cache (every such task stored one
// there as its very last dispatch step). This is deliberately a post-hoc
// pass rather than a live hook into worker.Replicator so notification
// still fires in single-node configurations where deps.Network is nil.
func (r *Runner) emitReceiptNotifications(workflowCID cid.Cid, wf workflow.Workflow, deps worker.Deps, result worker.Result) {
	if deps.Cache == nil {
		return
	}
	for i, task := range wf.Tasks {
		if i >= len(result.States) {
			break
		}
		state := result.States[i]
		if state != worker.TaskExecuted && state != worker.TaskReplayed {
			continue
		}
		instrCID, err := task.InstructionCID()
		if err != nil {
			continue
		}
		receipt, ok := deps.Cache.Lookup(instrCID)
		if !ok {
			continue
		}
		receiptCID, err := receipt.CID()
		if err != nil {
			continue
		}
		r.bus.emit(Event{
			Kind:        EventKindReceiptNotified,
			WorkflowCID: workflowCID,
			TaskName:    task.Run.Func,
			Replayed:    state == worker.TaskReplayed,
			ReceiptCID:  receiptCID,
		})
	}
}

// Status reports the last known state of a workflow this Runner has
// accepted, or false if it doesn't recognize the CID.
func (r *Runner) Status(workflowCID cid.Cid) (worker.WorkflowState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.running[workflowCID]
	return s, ok
}

