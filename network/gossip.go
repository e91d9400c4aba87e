package network

import (
	"context"
	"fmt"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/rs/zerolog"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/store"
)

// receiptsTopic is the single gossipsub topic every node subscribes to for
// broadcasting freshly produced receipts (§4.4, §6).
const receiptsTopic = "/homestar/receipts/1.0.0"

// gossip wraps the receipts pubsub topic: publishing locally produced
// receipts and folding received ones into the local receipt cache so a
// peer's execution can satisfy another peer's cache lookup without a DHT
// round trip.
type gossip struct {
	log   zerolog.Logger
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	cache  *store.ReceiptCache
	events chan<- Event
}

func newGossip(ctx context.Context, log zerolog.Logger, ps *pubsub.PubSub, cache *store.ReceiptCache, events chan<- Event) (*gossip, error) {
	topic, err := ps.Join(receiptsTopic)
	if err != nil {
		return nil, fmt.Errorf("network: join %s: %w", receiptsTopic, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("network: subscribe %s: %w", receiptsTopic, err)
	}
	return &gossip{log: log, topic: topic, sub: sub, cache: cache, events: events}, nil
}

// Publish broadcasts r to every subscriber of the receipts topic.
func (g *gossip) Publish(ctx context.Context, r invocation.Receipt) error {
	encoded, err := ipld.EncodeDAGCBOR(r.ToIPLD())
	if err != nil {
		return fmt.Errorf("network: encode receipt for gossip: %w", err)
	}
	if err := g.topic.Publish(ctx, encoded); err != nil {
		return fmt.Errorf("network: publish receipt: %w", err)
	}
	receiptCID, err := r.CID()
	if err == nil {
		emit(g.events, newEvent(EventPublishedReceiptPubsub, withCID(receiptCID)))
	}
	return nil
}

// loop is run by Network.gossipWorker, the worker function passed to
// component.ComponentManager: it reads messages off the receipts topic until ctx is cancelled, folding
// each into cache.
func (g *gossip) loop(ctx context.Context, selfID string) {
	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			return // context cancelled or subscription torn down
		}
		if msg.ReceivedFrom.String() == selfID {
			continue
		}
		v, err := ipld.DecodeDAGCBOR(msg.Data)
		if err != nil {
			g.log.Warn().Err(err).Msg("network: malformed receipt on gossip topic")
			continue
		}
		receipt, err := invocation.ReceiptFromIPLD(v)
		if err != nil {
			g.log.Warn().Err(err).Msg("network: undecodable receipt on gossip topic")
			continue
		}
		receiptCID, err := receipt.CID()
		if err != nil {
			continue
		}
		g.cache.Store(receipt.Ran.Target, receipt)
		emit(g.events, newEvent(EventReceivedReceiptPubsub, withPeer(msg.ReceivedFrom), withCID(receiptCID)))
	}
}

func (g *gossip) Close() {
	g.sub.Cancel()
	_ = g.topic.Close()
}
