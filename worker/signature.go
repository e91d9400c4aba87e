package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/sandbox"
)

// SignatureResolver supplies the WIT signature of an exported function so
// arguments can be translated IPLD→WIT before dispatch (§4.2 step 4). A
// real deployment would derive this from the component's embedded WIT
// world; parsing the WIT text/binary format is out of scope here, so
// resolution is a pluggable lookup an embedder populates from whatever it
// already knows about the resources it runs (a build manifest, a
// side-loaded WIT package, etc).
type SignatureResolver interface {
	Resolve(ctx context.Context, resource invocation.Resource, fn string) (sandbox.Signature, error)
}

type signatureKey struct {
	resource string
	fn       string
}

// StaticSignatureRegistry is a SignatureResolver backed by an in-memory
// table, registered ahead of time (e.g. at workflow submission from the
// RPC caller's declared interface, or via `homestar keygen`-adjacent
// tooling that inspects a component at publish time).
type StaticSignatureRegistry struct {
	mu    sync.RWMutex
	table map[signatureKey]sandbox.Signature
}

// NewStaticSignatureRegistry builds an empty registry.
func NewStaticSignatureRegistry() *StaticSignatureRegistry {
	return &StaticSignatureRegistry{table: make(map[signatureKey]sandbox.Signature)}
}

// Register associates fn on resource with sig.
func (r *StaticSignatureRegistry) Register(resource invocation.Resource, fn string, sig sandbox.Signature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[signatureKey{resource: resource.String(), fn: fn}] = sig
}

// Resolve implements SignatureResolver.
func (r *StaticSignatureRegistry) Resolve(_ context.Context, resource invocation.Resource, fn string) (sandbox.Signature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sig, ok := r.table[signatureKey{resource: resource.String(), fn: fn}]
	if !ok {
		return sandbox.Signature{}, fmt.Errorf("%w: %s#%s", ErrNoSignature, resource.String(), fn)
	}
	return sig, nil
}
