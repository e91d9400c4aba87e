package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v25"
	"github.com/rs/zerolog"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/store"
	"github.com/ipvm-wg/homestar/wit"
)

// epochTickPeriod is how often the engine's epoch advances; a task's
// wall-clock timeout is enforced to the nearest multiple of this period.
const epochTickPeriod = 50 * time.Millisecond

// Signature describes the WIT types of one exported function, the
// contract the interpreter translates arguments and results against
// (§4.1, §4.2).
type Signature struct {
	Params []wit.Type
	Result wit.Type
}

// Task bundles everything Execute needs to run one instruction: which
// exported function to call, its WIT signature, the already-decoded IPLD
// arguments, and the resource limits to enforce.
type Task struct {
	Export    string
	Signature Signature
	Args      []ipld.Value
	Resources invocation.Resources
}

// Execute fetches resource's bytes, instantiates them against eng,
// invokes task.Export with task.Args translated per task.Signature, and
// returns the translated IPLD result. Every failure is a *sandbox.Error
// tagged with the §7 failure class the worker uses to decide whether to
// produce an Error receipt (most classes) or no receipt at all
// (FailureCancelled).
func Execute(ctx context.Context, log zerolog.Logger, eng *Engine, bs store.BlockStore, fetchPolicy FetchRetryPolicy, resource invocation.Resource, task Task) (ipld.Value, error) {
	wasmBytes, err := FetchResource(ctx, log, bs, resource, fetchPolicy)
	if err != nil {
		return ipld.Value{}, err
	}

	module, err := wasmtime.NewModule(eng.engine, wasmBytes)
	if err != nil {
		return ipld.Value{}, newError(FailureTrap, fmt.Errorf("compile module: %w", err))
	}

	wasmStore := wasmtime.NewStore(eng.engine)

	limits := newStoreLimits(task.Resources.MemoryOrDefault())
	wasmStore.Limiter(int64(limits.maxMemoryBytes), -1, -1, -1, -1)

	if fuel, metered := task.Resources.FuelOrUnlimited(); metered {
		if err := wasmStore.SetFuel(fuel); err != nil {
			return ipld.Value{}, newError(FailureTrap, fmt.Errorf("set fuel: %w", err))
		}
	}

	timeout := task.Resources.TimeoutOrDefault()
	eng.startEpochTicker(epochTickPeriod)
	deadlineTicks := uint64(timeout/epochTickPeriod) + 1
	wasmStore.SetEpochDeadline(deadlineTicks)

	linker := wasmtime.NewLinker(eng.engine)
	instance, err := linker.Instantiate(wasmStore, module)
	if err != nil {
		return ipld.Value{}, classifyInstantiationError(err)
	}

	fn := instance.GetFunc(wasmStore, task.Export)
	if fn == nil {
		return ipld.Value{}, newError(FailureTrap, fmt.Errorf("export %q not found", task.Export))
	}

	abi := &coreABI{store: wasmStore, inst: instance}

	if len(task.Args) != len(task.Signature.Params) {
		return ipld.Value{}, newError(FailureInterpreterError, fmt.Errorf("expected %d arguments, got %d", len(task.Signature.Params), len(task.Args)))
	}

	var coreArgs []interface{}
	for i, arg := range task.Args {
		wv, err := wit.ToWIT(task.Signature.Params[i], arg)
		if err != nil {
			return ipld.Value{}, newError(FailureInterpreterError, err)
		}
		lowered, err := abi.lower(task.Signature.Params[i], wv)
		if err != nil {
			return ipld.Value{}, newError(FailureInterpreterError, err)
		}
		coreArgs = append(coreArgs, lowered...)
	}

	resultCh := make(chan callResult, 1)
	go func() {
		res, err := fn.Call(wasmStore, coreArgs...)
		resultCh <- callResult{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		// Force the running call to hit its next epoch check almost
		// immediately rather than waiting out its full timeout budget;
		// dropping wasmStore afterward is the "hard abort" of §4.2.
		wasmStore.SetEpochDeadline(0)
		eng.engine.IncrementEpoch()
		return ipld.Value{}, newError(FailureCancelled, ctx.Err())
	case cr := <-resultCh:
		if cr.err != nil {
			return ipld.Value{}, classifyCallError(cr.err)
		}
		var core []interface{}
		if multi, ok := cr.res.([]interface{}); ok {
			core = multi
		} else if cr.res != nil {
			core = []interface{}{cr.res}
		}
		wv, err := abi.lift(task.Signature.Result, core)
		if err != nil {
			return ipld.Value{}, newError(FailureInterpreterError, err)
		}
		return wit.FromWIT(task.Signature.Result, wv)
	}
}

type callResult struct {
	res interface{}
	err error
}

func classifyInstantiationError(err error) error {
	var trap *wasmtime.Trap
	if errors.As(err, &trap) {
		return classifyTrap(trap)
	}
	return newError(FailureTrap, fmt.Errorf("instantiate: %w", err))
}

func classifyCallError(err error) error {
	var trap *wasmtime.Trap
	if errors.As(err, &trap) {
		return classifyTrap(trap)
	}
	return newError(FailureTrap, err)
}

// classifyTrap maps a wasmtime trap to the §7 failure taxonomy.
// Fuel exhaustion and epoch-deadline traps are engine-level signals
// wasmtime raises as ordinary traps; they are distinguished here by the
// trap's own code/message since wasmtime-go surfaces both through the
// same *wasmtime.Trap type.
func classifyTrap(trap *wasmtime.Trap) error {
	msg := trap.Message()
	switch {
	case strings.Contains(msg, "fuel"):
		return newError(FailureResourceExhaustedFuel, trap)
	case strings.Contains(msg, "epoch"), strings.Contains(msg, "interrupt"):
		return newError(FailureResourceExhaustedTime, trap)
	default:
		return newError(FailureTrap, trap)
	}
}
