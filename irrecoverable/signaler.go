// Package irrecoverable provides a drop-in replacement for panic/log.Fatal
// inside goroutines that a supervising component needs to observe rather
// than crash on. A component derives a SignalerContext from its parent
// context and threads it through anything that can fail fatally; the first
// Throw is delivered to whoever is reading the error channel.
package irrecoverable

import (
	"context"
	"log"
	"runtime"
)

// Signaler delivers a single irrecoverable error to its owner.
type Signaler struct {
	errors chan<- error
}

// NewSignaler wraps an error channel in a Signaler.
func NewSignaler(errors chan<- error) *Signaler {
	return &Signaler{errors: errors}
}

// Throw sends err to the owning goroutine and exits the calling goroutine.
// It never returns.
func (s *Signaler) Throw(err error) {
	s.errors <- err
	runtime.Goexit()
}

// SignalerContext is a context.Context that can also Throw. It is sealed so
// that the only way to construct one is via WithSignaler.
type SignalerContext interface {
	context.Context
	Throw(err error)
	sealed()
}

type signalerCtx struct {
	context.Context
	signaler *Signaler
}

func (signalerCtx) sealed() {}

func (sc signalerCtx) Throw(err error) {
	sc.signaler.Throw(err)
}

// WithSignaler derives a SignalerContext from ctx, delivering any Throw to sig.
func WithSignaler(ctx context.Context, sig *Signaler) SignalerContext {
	return signalerCtx{Context: ctx, signaler: sig}
}

// WithSignalerContext derives a SignalerContext together with a fresh error
// channel, the shape component.Run expects.
func WithSignalerContext(ctx context.Context) (SignalerContext, <-chan error) {
	errCh := make(chan error, 1)
	return WithSignaler(ctx, NewSignaler(errCh)), errCh
}

// Throw is the free-function form: if ctx is a SignalerContext it delegates,
// otherwise it degrades to log.Fatalf so the failure is never silent.
func Throw(ctx context.Context, err error) {
	if sc, ok := ctx.(SignalerContext); ok {
		sc.Throw(err)
		return
	}
	log.Fatalf("irrecoverable error with no signaler attached: %v", err)
}
