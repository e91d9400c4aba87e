// Package component defines the Startable/ReadyDoneAware lifecycle contract
// shared by the network node, workers, and the runner, and a ComponentManager
// that implements it in terms of a set of worker goroutines.
package component

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/atomic"

	"github.com/ipvm-wg/homestar/irrecoverable"
)

// ErrMultipleStartup is returned (via panic) if a component is started more than once.
var ErrMultipleStartup = errors.New("component may only be started once")

// Startable can be started with a signaler context that carries irrecoverable errors.
type Startable interface {
	Start(ctx irrecoverable.SignalerContext)
}

// ReadyDoneAware exposes channels that close once startup and shutdown complete.
type ReadyDoneAware interface {
	Ready() <-chan struct{}
	Done() <-chan struct{}
}

// Component is anything with the full lifecycle contract.
type Component interface {
	Startable
	ReadyDoneAware
}

// ReadyFunc is invoked by a Worker once it has finished its setup.
type ReadyFunc func()

// Worker is one concurrent unit of work owned by a ComponentManager.
type Worker func(ctx irrecoverable.SignalerContext, ready ReadyFunc)

// ComponentManager runs a fixed set of Worker functions and implements
// Component in terms of their collective readiness/completion.
type ComponentManager struct {
	started *atomic.Bool
	ready   chan struct{}
	done    chan struct{}

	workersDone chan struct{}
	workers     []Worker
}

var _ Component = (*ComponentManager)(nil)

// NewComponentManager builds a ComponentManager over the given workers.
// NewComponentManager may be called multiple times with the same worker
// slice only if the workers themselves are safe to invoke concurrently
// more than once.
func NewComponentManager(workers ...Worker) *ComponentManager {
	return &ComponentManager{
		started:     atomic.NewBool(false),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
		workersDone: make(chan struct{}),
		workers:     workers,
	}
}

// Start launches all worker routines. It must be called at most once.
func (c *ComponentManager) Start(parent irrecoverable.SignalerContext) {
	if !c.started.CAS(false, true) {
		panic(ErrMultipleStartup)
	}

	ctx, cancel := context.WithCancel(parent)
	signalerCtx, errCh := irrecoverable.WithSignalerContext(ctx)

	go func() {
		defer func() {
			<-c.workersDone
			close(c.done)
		}()
		select {
		case err := <-errCh:
			cancel()
			parent.Throw(err)
		case <-c.workersDone:
		}
	}()

	var workersReady sync.WaitGroup
	var workersDone sync.WaitGroup
	workersReady.Add(len(c.workers))
	workersDone.Add(len(c.workers))

	for _, w := range c.workers {
		w := w
		go func() {
			defer workersDone.Done()
			var once sync.Once
			w(signalerCtx, func() { once.Do(workersReady.Done) })
		}()
	}

	go func() {
		workersReady.Wait()
		close(c.ready)
	}()
	go func() {
		workersDone.Wait()
		close(c.workersDone)
	}()
}

// Ready closes once every worker has signaled readiness.
func (c *ComponentManager) Ready() <-chan struct{} { return c.ready }

// Done closes once every worker has returned.
func (c *ComponentManager) Done() <-chan struct{} { return c.done }
