package network

import (
	"time"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
)

// EventKind names one of the network notifications enumerated in §6.
type EventKind string

const (
	EventConnectionEstablished       EventKind = "connection_established"
	EventConnectionClosed            EventKind = "connection_closed"
	EventDiscoveredMDNS              EventKind = "discovered_mdns"
	EventDiscoveredRendezvous        EventKind = "discovered_rendezvous"
	EventPublishedReceiptPubsub      EventKind = "published_receipt_pubsub"
	EventReceivedReceiptPubsub       EventKind = "received_receipt_pubsub"
	EventPutReceiptDHT               EventKind = "put_receipt_dht"
	EventGotReceiptDHT               EventKind = "got_receipt_dht"
	EventPutWorkflowInfoDHT          EventKind = "put_workflow_info_dht"
	EventGotWorkflowInfoDHT          EventKind = "got_workflow_info_dht"
	EventReceiptQuorumSuccessDHT     EventKind = "receipt_quorum_success_dht"
	EventReceiptQuorumFailureDHT     EventKind = "receipt_quorum_failure_dht"
	EventWorkflowInfoQuorumSuccess   EventKind = "workflow_info_quorum_success_dht"
	EventWorkflowInfoQuorumFailure   EventKind = "workflow_info_quorum_failure_dht"
	EventSentWorkflowInfo            EventKind = "sent_workflow_info"
	EventReceivedWorkflowInfo        EventKind = "received_workflow_info"
)

// Event is one timestamped, optionally CID-carrying network notification.
// Every publish/subscribe, discovery, and DHT round trip in this package
// emits one of these onto the Network's Events channel (§6) rather than
// logging directly, so an embedder can surface node activity without
// coupling to the log format.
type Event struct {
	Kind      EventKind
	Time      time.Time
	Peer      peer.ID
	CID       cid.Cid
	Err       error
	QuorumGot int
	QuorumOf  int
}

func newEvent(kind EventKind, opts ...func(*Event)) Event {
	e := Event{Kind: kind, Time: time.Now()}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func withPeer(p peer.ID) func(*Event) { return func(e *Event) { e.Peer = p } }
func withCID(c cid.Cid) func(*Event)  { return func(e *Event) { e.CID = c } }
func withErr(err error) func(*Event)  { return func(e *Event) { e.Err = err } }
func withQuorum(got, of int) func(*Event) {
	return func(e *Event) { e.QuorumGot, e.QuorumOf = got, of }
}

// emit is a non-blocking send: a slow or absent subscriber must never
// stall gossip, DHT, or discovery processing.
func emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- e:
	default:
	}
}
