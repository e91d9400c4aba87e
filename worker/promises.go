package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
)

// dhtLookupTimeout bounds step 3's DHT round trip so a slow or partitioned
// network never stalls a batch (§4.5 step 3: "time-bounded").
const dhtLookupTimeout = 5 * time.Second

func contextWithShortTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, dhtLookupTimeout)
}

// resolveArguments turns task's Argument list into literal IPLD values,
// substituting each Await with the resolved receipt's output per §4.5
// step 4's selector semantics.
func resolveArguments(ctx context.Context, deps Deps, task invocation.Task, batchResults map[cid.Cid]invocation.Receipt) ([]ipld.Value, error) {
	out := make([]ipld.Value, len(task.Run.Args))
	for i, arg := range task.Run.Args {
		if lit, ok := arg.Literal(); ok {
			out[i] = lit
			continue
		}
		await, _ := arg.Await()
		receipt, err := resolvePromise(ctx, deps, await.Pointer.Target, batchResults)
		if err != nil {
			return nil, err
		}
		v, err := selectBranch(await.Selector, receipt.Out)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// selectBranch implements the await/ok, await/error, await/* selector
// semantics of §4.5.
func selectBranch(selector invocation.AwaitSelector, out invocation.Output) (ipld.Value, error) {
	switch selector {
	case invocation.AwaitOK:
		if out.IsError() {
			return ipld.Value{}, fmt.Errorf("%w: await/ok on an error receipt", ErrPromiseBranchMismatch)
		}
		return out.Value, nil
	case invocation.AwaitError:
		if !out.IsError() {
			return ipld.Value{}, fmt.Errorf("%w: await/error on a non-error receipt", ErrPromiseBranchMismatch)
		}
		return out.Value, nil
	default: // AwaitAny
		return out.Value, nil
	}
}

// resolvePromise finds the receipt that resolves an Await pointer. It
// checks, in order: this batch's already-completed sibling tasks (the
// common case for an intra-workflow await), the local receipt cache
// (which is keyed by instruction CID, same as batchResults), the durable
// store's instruction-CID index, and finally the network DHT, which is
// also keyed by instruction CID — target is a cross-workflow await's
// instruction CID throughout, never the remote receipt's own CID, since
// the referencing workflow never saw the remote instruction execute.
func resolvePromise(ctx context.Context, deps Deps, target cid.Cid, batchResults map[cid.Cid]invocation.Receipt) (invocation.Receipt, error) {
	if r, ok := batchResults[target]; ok {
		return r, nil
	}
	if deps.Cache != nil {
		if r, ok := deps.Cache.Lookup(target); ok {
			return r, nil
		}
	}
	if deps.Durable != nil {
		receipts, err := deps.Durable.ReceiptsForInstruction(ctx, target)
		if err == nil && len(receipts) > 0 {
			return receipts[len(receipts)-1], nil
		}
	}
	if deps.Network != nil {
		dhtCtx, cancel := contextWithShortTimeout(ctx)
		defer cancel()
		if r, err := deps.Network.GetReceipt(dhtCtx, target); err == nil {
			return r, nil
		}
	}
	return invocation.Receipt{}, fmt.Errorf("%w: %s", ErrUnresolvedPromise, target)
}
