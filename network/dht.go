package network

import (
	"context"
	"fmt"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/rs/zerolog"

	"github.com/ipfs/go-cid"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/workflow"
)

// dhtStore is the receipt/workflow-info replication layer built on the
// Kademlia DHT. Quorum is verified only on reads: dht.Quorum(n) makes a
// Get wait for n matching values before returning, and a value that
// cannot reach quorum surfaces as a QuorumFailure event rather than
// blocking or failing the caller's worker loop (§4.4, §6).
type dhtStore struct {
	log    zerolog.Logger
	kad    *dht.IpfsDHT
	quorum int
	events chan<- Event
}

func newDHTStore(log zerolog.Logger, kad *dht.IpfsDHT, quorum int, events chan<- Event) *dhtStore {
	if quorum < 1 {
		quorum = 1
	}
	return &dhtStore{log: log, kad: kad, quorum: quorum, events: events}
}

// receiptDHTKey is keyed by the instruction CID a receipt answers, not the
// receipt's own CID: every other replication path (the local cache, the
// gossip topic in gossip.go, the request/response protocol in reqresp.go)
// looks a receipt up by the instruction it ran, and step 3 of §4.5's
// per-task algorithm is a continuation of step 2's instruction-CID cache
// lookup. Keying by the receipt's own CID here would make this the only
// replication path a caller could never actually hit, since a caller
// dispatching an instruction has no way to know its receipt's CID in
// advance. Mirrors original_source/homestar-runtime/src/event_handler/
// event.rs's `Record::new(instruction_bytes, receipt_bytes)`.
func receiptDHTKey(instructionCID cid.Cid) string {
	return "/homestar/receipt/" + instructionCID.String()
}

func workflowDHTKey(workflowCID cid.Cid) string {
	return "/homestar/workflow/" + workflowCID.String()
}

// PutReceipt replicates r's wire encoding into the DHT under the
// instruction CID it ran.
func (d *dhtStore) PutReceipt(ctx context.Context, r invocation.Receipt) (cid.Cid, error) {
	receiptCID, err := r.CID()
	if err != nil {
		return cid.Undef, fmt.Errorf("network: compute receipt cid: %w", err)
	}
	encoded, err := ipld.EncodeDAGCBOR(r.ToIPLD())
	if err != nil {
		return cid.Undef, fmt.Errorf("network: encode receipt: %w", err)
	}
	if err := d.kad.PutValue(ctx, receiptDHTKey(r.Ran.Target), encoded); err != nil {
		return cid.Undef, fmt.Errorf("network: dht put receipt: %w", err)
	}
	emit(d.events, newEvent(EventPutReceiptDHT, withCID(receiptCID)))
	return receiptCID, nil
}

// GetReceipt looks up the receipt for instructionCID, requiring quorum
// matching values among the peers queried.
func (d *dhtStore) GetReceipt(ctx context.Context, instructionCID cid.Cid) (invocation.Receipt, error) {
	encoded, err := d.kad.GetValue(ctx, receiptDHTKey(instructionCID), dht.Quorum(d.quorum))
	if err != nil {
		emit(d.events, newEvent(EventReceiptQuorumFailureDHT, withCID(instructionCID), withErr(err), withQuorum(0, d.quorum)))
		return invocation.Receipt{}, fmt.Errorf("network: dht get receipt for instruction %s: %w", instructionCID, err)
	}
	v, err := ipld.DecodeDAGCBOR(encoded)
	if err != nil {
		return invocation.Receipt{}, fmt.Errorf("network: decode dht receipt for instruction %s: %w", instructionCID, err)
	}
	receipt, err := invocation.ReceiptFromIPLD(v)
	if err != nil {
		return invocation.Receipt{}, fmt.Errorf("network: parse dht receipt for instruction %s: %w", instructionCID, err)
	}
	receiptCID, err := receipt.CID()
	if err != nil {
		receiptCID = instructionCID
	}
	emit(d.events, newEvent(EventGotReceiptDHT, withCID(receiptCID)))
	emit(d.events, newEvent(EventReceiptQuorumSuccessDHT, withCID(receiptCID), withQuorum(d.quorum, d.quorum)))
	return receipt, nil
}

// PutWorkflowInfo replicates info into the DHT under its workflow CID.
// Callers are responsible for only ever calling this with a
// info.WithReceipt-derived value so progress never regresses on peers
// that observe both an old and a new copy (§3 invariant).
func (d *dhtStore) PutWorkflowInfo(ctx context.Context, info workflow.Info) error {
	encoded, err := ipld.EncodeDAGCBOR(info.ToIPLD())
	if err != nil {
		return fmt.Errorf("network: encode workflow info: %w", err)
	}
	if err := d.kad.PutValue(ctx, workflowDHTKey(info.CID), encoded); err != nil {
		return fmt.Errorf("network: dht put workflow info: %w", err)
	}
	emit(d.events, newEvent(EventPutWorkflowInfoDHT, withCID(info.CID)))
	return nil
}

// GetWorkflowInfo fetches the replicated progress record for workflowCID,
// requiring quorum matching values.
func (d *dhtStore) GetWorkflowInfo(ctx context.Context, workflowCID cid.Cid) (workflow.Info, error) {
	encoded, err := d.kad.GetValue(ctx, workflowDHTKey(workflowCID), dht.Quorum(d.quorum))
	if err != nil {
		emit(d.events, newEvent(EventWorkflowInfoQuorumFailure, withCID(workflowCID), withErr(err), withQuorum(0, d.quorum)))
		return workflow.Info{}, fmt.Errorf("network: dht get workflow info %s: %w", workflowCID, err)
	}
	v, err := ipld.DecodeDAGCBOR(encoded)
	if err != nil {
		return workflow.Info{}, fmt.Errorf("network: decode dht workflow info %s: %w", workflowCID, err)
	}
	info, err := workflow.InfoFromIPLD(v)
	if err != nil {
		return workflow.Info{}, fmt.Errorf("network: parse dht workflow info %s: %w", workflowCID, err)
	}
	emit(d.events, newEvent(EventGotWorkflowInfoDHT, withCID(workflowCID)))
	emit(d.events, newEvent(EventWorkflowInfoQuorumSuccess, withCID(workflowCID), withQuorum(d.quorum, d.quorum)))
	return info, nil
}
