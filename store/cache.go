package store

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/go-cid"

	"github.com/ipvm-wg/homestar/invocation"
)

// ReceiptCache memoizes receipts by their instruction CID (§4.3). It is
// the one component in this system that is genuinely shared mutable
// state (§9 design notes); everything else is message-passing. Worker.
// dispatch routes every execution through GetOrCompute, whose per-key
// in-flight exclusion ensures that concurrent dispatches of the same
// instruction (e.g. two tasks in one batch sharing an instruction CID)
// invoke Compute at most once, satisfying the replay invariant of §8:
// dispatching an already-executed instruction produces a replayed
// receipt without invoking the Wasm engine again.
type ReceiptCache struct {
	mu       sync.Mutex
	lru      *lru.Cache[cid.Cid, invocation.Receipt]
	inflight map[cid.Cid]*call
}

type call struct {
	done    chan struct{}
	receipt invocation.Receipt
	err     error
}

// NewReceiptCache constructs a cache holding at most size receipts.
func NewReceiptCache(size int) (*ReceiptCache, error) {
	c, err := lru.New[cid.Cid, invocation.Receipt](size)
	if err != nil {
		return nil, err
	}
	return &ReceiptCache{lru: c, inflight: make(map[cid.Cid]*call)}, nil
}

// Lookup returns a cached receipt for instructionCID, if present.
func (rc *ReceiptCache) Lookup(instructionCID cid.Cid) (invocation.Receipt, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.lru.Get(instructionCID)
}

// Store records a receipt directly, e.g. one learned from a DHT lookup
// or a gossip message from another peer. If a receipt is already cached
// for instructionCID, the first one seen is kept and r is dropped.
func (rc *ReceiptCache) Store(instructionCID cid.Cid, r invocation.Receipt) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.lru.Contains(instructionCID) {
		return
	}
	rc.lru.Add(instructionCID, r)
}

// GetOrCompute returns the cached receipt for instructionCID if one
// exists (replayed == true); otherwise it runs compute exactly once even
// under concurrent callers for the same instructionCID, caches the
// result on success, and fans the result out to every waiter.
func (rc *ReceiptCache) GetOrCompute(
	ctx context.Context,
	instructionCID cid.Cid,
	compute func(ctx context.Context) (invocation.Receipt, error),
) (receipt invocation.Receipt, replayed bool, err error) {
	rc.mu.Lock()
	if r, ok := rc.lru.Get(instructionCID); ok {
		rc.mu.Unlock()
		return r, true, nil
	}
	if c, ok := rc.inflight[instructionCID]; ok {
		rc.mu.Unlock()
		select {
		case <-c.done:
			return c.receipt, c.err == nil, c.err
		case <-ctx.Done():
			return invocation.Receipt{}, false, ctx.Err()
		}
	}

	c := &call{done: make(chan struct{})}
	rc.inflight[instructionCID] = c
	rc.mu.Unlock()

	c.receipt, c.err = compute(ctx)

	rc.mu.Lock()
	delete(rc.inflight, instructionCID)
	if c.err == nil {
		rc.lru.Add(instructionCID, c.receipt)
	}
	rc.mu.Unlock()
	close(c.done)

	return c.receipt, false, c.err
}
