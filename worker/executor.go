package worker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/sandbox"
	"github.com/ipvm-wg/homestar/store"
)

// Executor runs one sandbox.Task and returns its translated result. It is
// the seam between the scheduler and sandbox.Execute so tests can supply a
// fake instead of a real wasmtime engine.
type Executor interface {
	Execute(ctx context.Context, resource invocation.Resource, task sandbox.Task) (ipld.Value, error)
}

// SandboxExecutor adapts sandbox.Execute (plus its engine/block-store/
// retry-policy dependencies) to the Executor interface.
type SandboxExecutor struct {
	Log     zerolog.Logger
	Engine  *sandbox.Engine
	Blocks  store.BlockStore
	Retries sandbox.FetchRetryPolicy
}

// Execute implements Executor.
func (s SandboxExecutor) Execute(ctx context.Context, resource invocation.Resource, task sandbox.Task) (ipld.Value, error) {
	return sandbox.Execute(ctx, s.Log, s.Engine, s.Blocks, s.Retries, resource, task)
}
