// Package runner is the top-level supervisor named in §2/§6: it owns the
// network component, accepts workflow submissions from the external RPC
// surface, spawns a Worker per submission, and fans out both network and
// scheduler events to subscribers. The RPC/WebSocket transport itself is
// out of scope (§1 Non-goals); this package only owns the event bus and
// submission intake those transports would sit behind.
package runner

import (
	"time"

	"github.com/ipfs/go-cid"

	"github.com/ipvm-wg/homestar/network"
	"github.com/ipvm-wg/homestar/worker"
)

// EventKind distinguishes the two families of event the runner emits:
// network-fabric events (passed through from network.Network) and
// receipt-notification events (§6 "Receipt notification (RPC boundary)").
type EventKind string

const (
	EventKindNetwork          EventKind = "network"
	EventKindReceiptNotified  EventKind = "receipt_notified"
	EventKindWorkflowAccepted EventKind = "workflow_accepted"
	EventKindWorkflowFinished EventKind = "workflow_finished"
)

// Event is the runner's unified notification shape. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind EventKind
	Time time.Time

	// EventKindNetwork
	Network *network.Event

	// EventKindReceiptNotified: "{ metadata: { name, replayed, receipt_cid }, receipt }"
	WorkflowCID cid.Cid
	TaskName    string
	Replayed    bool
	ReceiptCID  cid.Cid

	// EventKindWorkflowAccepted / EventKindWorkflowFinished
	Status worker.WorkflowState
	Err    error
}

// bus fans a single stream of Events out to any number of subscribers.
// Subscribers that fall behind are dropped from delivery for that event
// (non-blocking send) rather than stalling the producer, matching the
// network package's event-emission discipline.
type bus struct {
	subscribe   chan chan Event
	unsubscribe chan chan Event
	publish     chan Event
	done        chan struct{}
}

// newBus builds a bus and immediately starts its dispatch goroutine, so
// Subscribe/emit work as soon as a Runner is constructed, independent of
// whether its component lifecycle has been Started.
func newBus() *bus {
	b := &bus{
		subscribe:   make(chan chan Event),
		unsubscribe: make(chan chan Event),
		publish:     make(chan Event, 64),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *bus) run() {
	subs := make(map[chan Event]struct{})
	for {
		select {
		case ch := <-b.subscribe:
			subs[ch] = struct{}{}
		case ch := <-b.unsubscribe:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
		case e := <-b.publish:
			for ch := range subs {
				select {
				case ch <- e:
				default:
				}
			}
		case <-b.done:
			for ch := range subs {
				close(ch)
			}
			return
		}
	}
}

func (b *bus) emit(e Event) {
	select {
	case b.publish <- e:
	case <-b.done:
	}
}

// Subscribe returns a channel of future events. Call the returned
// cancel func to unsubscribe and release the channel.
func (b *bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.subscribe <- ch
	return ch, func() { b.unsubscribe <- ch }
}

func (b *bus) Close() { close(b.done) }
