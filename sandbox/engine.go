package sandbox

import (
	"sync"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v25"
)

// Engine wraps a single wasmtime.Engine configured for fuel metering and
// epoch-based interruption, shared across every task execution in this
// process (compiling a wasmtime.Engine is expensive; instantiating a
// Store from it per task is cheap).
type Engine struct {
	engine *wasmtime.Engine

	tickOnce sync.Once
	stopTick chan struct{}
}

// NewEngine constructs an Engine. Call Close when the process is shutting
// down to stop its epoch ticker goroutine.
func NewEngine() *Engine {
	cfg := wasmtime.NewConfig()
	cfg.SetConsumeFuel(true)
	cfg.SetEpochInterruption(true)

	e := &Engine{engine: wasmtime.NewEngineWithConfig(cfg), stopTick: make(chan struct{})}
	return e
}

// startEpochTicker increments the engine's epoch on a fixed cadence; a
// Store's SetEpochDeadline(1) traps the executing call the next time the
// engine's epoch advances past its deadline, which is how wall-clock
// timeouts are enforced independent of fuel (§4.2, §5).
func (e *Engine) startEpochTicker(period time.Duration) {
	e.tickOnce.Do(func() {
		go func() {
			t := time.NewTicker(period)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					e.engine.IncrementEpoch()
				case <-e.stopTick:
					return
				}
			}
		}()
	})
}

// Close stops the epoch ticker goroutine, if it was ever started.
func (e *Engine) Close() {
	select {
	case <-e.stopTick:
	default:
		close(e.stopTick)
	}
}
