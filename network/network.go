package network

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-cid"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"
	madns "github.com/multiformats/go-multiaddr-dns"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"

	libp2p "github.com/libp2p/go-libp2p"
	record "github.com/libp2p/go-libp2p-record"

	"github.com/ipvm-wg/homestar/component"
	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/irrecoverable"
	"github.com/ipvm-wg/homestar/store"
	"github.com/ipvm-wg/homestar/workflow"
)

// Network is the node's libp2p presence: transport, peer discovery,
// gossipsub receipt distribution, DHT replication with quorum tracking,
// and a request/response fallback for cache misses (§4.4). It implements
// component.Component so it starts and stops alongside the rest of the
// node under a single irrecoverable.SignalerContext.
type Network struct {
	log      zerolog.Logger
	cfg      Config
	identity Identity

	host    host.Host
	kad     *dht.IpfsDHT
	pubsub  *pubsub.PubSub
	gossip  *gossip
	dht     *dhtStore
	reqResp *reqResp
	cache   *store.ReceiptCache

	events chan Event

	*component.ComponentManager
}

// New builds a Network but does not start it; call Start (via the
// embedded component.ComponentManager) to bring up the libp2p host and
// begin discovery, gossip, and DHT replication.
func New(ctx context.Context, log zerolog.Logger, identity Identity, cfg Config, cache *store.ReceiptCache) (*Network, error) {
	var listenAddrs []multiaddr.Multiaddr
	for _, a := range cfg.ListenAddrs {
		ma, err := multiaddr.NewMultiaddr(a)
		if err != nil {
			return nil, fmt.Errorf("network: parse listen addr %q: %w", a, err)
		}
		listenAddrs = append(listenAddrs, ma)
	}

	n := &Network{log: log, cfg: cfg, identity: identity, cache: cache, events: make(chan Event, 256)}

	var kad *dht.IpfsDHT
	h, err := libp2p.New(
		libp2p.Identity(identity.Private),
		libp2p.ListenAddrs(listenAddrs...),
		libp2p.EnableNATService(),
		libp2p.EnableRelay(),
		libp2p.Routing(func(h host.Host) (routing.PeerRouting, error) {
			d, err := dht.New(ctx, h,
				dht.Mode(dht.ModeAutoServer),
				dht.ProtocolPrefix("/homestar"),
				dht.Validator(record.NamespacedValidator{"homestar": recordValidator{}}),
			)
			if err != nil {
				return nil, err
			}
			kad = d
			return d, nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("network: construct libp2p host: %w", err)
	}
	n.host = h
	n.kad = kad

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("network: construct gossipsub: %w", err)
	}
	n.pubsub = ps

	g, err := newGossip(ctx, log, ps, cache, n.events)
	if err != nil {
		return nil, fmt.Errorf("network: join receipts topic: %w", err)
	}
	n.gossip = g

	n.dht = newDHTStore(log, kad, cfg.quorumOrDefault(), n.events)
	n.reqResp = newReqResp(log, h, cache)

	n.host.Network().Notify(&connNotifiee{events: n.events})

	workers := []component.Worker{n.gossipWorker, n.bootstrapWorker}
	if kad != nil {
		workers = append(workers, n.rendezvousWorker)
	}
	if cfg.EnableMDNS {
		workers = append(workers, n.mdnsWorker)
	}
	n.ComponentManager = component.NewComponentManager(workers...)

	return n, nil
}

func (n *Network) gossipWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	n.gossip.loop(ctx, n.host.ID().String())
}

func (n *Network) mdnsWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	svc, err := startMDNS(ctx, n.log, n.host, n.events)
	ready()
	if err != nil {
		n.log.Warn().Err(err).Msg("network: mdns discovery unavailable")
		return
	}
	<-ctx.Done()
	_ = svc.Close()
}

func (n *Network) rendezvousWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	rendezvousLoop(ctx, n.log, n.host, n.kad, n.events)
}

// bootstrapWorker dials every configured bootstrap peer and redials any
// that later disconnect, per §4.4's "redial-on-lost-bootstrap" behavior.
// Bootstrap addresses may be given as /dnsaddr/... multiaddrs (the
// convention public IPFS/libp2p bootstrap lists use), which are resolved
// to concrete /ip4|ip6/.../p2p/... addrs before dialing.
func (n *Network) bootstrapWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	resolver, err := madns.NewResolver()
	if err != nil {
		n.log.Warn().Err(err).Msg("network: build dnsaddr resolver, falling back to unresolved addrs")
	}

	var peers []peer.AddrInfo
	for _, addr := range n.cfg.BootstrapPeers {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			n.log.Warn().Err(err).Str("addr", addr).Msg("network: bad bootstrap addr")
			continue
		}
		resolved := []multiaddr.Multiaddr{ma}
		if resolver != nil && madns.Matches(ma) {
			rs, err := resolver.Resolve(ctx, ma)
			if err != nil {
				n.log.Warn().Err(err).Str("addr", addr).Msg("network: resolve dnsaddr bootstrap addr")
				continue
			}
			resolved = rs
		}
		for _, rma := range resolved {
			pi, err := peer.AddrInfoFromP2pAddr(rma)
			if err != nil {
				n.log.Warn().Err(err).Str("addr", rma.String()).Msg("network: bad bootstrap addr")
				continue
			}
			peers = append(peers, *pi)
		}
	}
	ready()

	if len(peers) == 0 {
		<-ctx.Done()
		return
	}

	// dialAll aggregates every failed dial in a pass into a single
	// multierror, mirroring flow-go's fan-out error aggregation, and logs
	// the aggregate rather than one line per peer.
	dialAll := func() {
		var result *multierror.Error
		for _, pi := range peers {
			if n.host.Network().Connectedness(pi.ID) == network.Connected {
				continue
			}
			if err := n.host.Connect(ctx, pi); err != nil {
				result = multierror.Append(result, fmt.Errorf("peer %s: %w", pi.ID, err))
			}
		}
		if result != nil {
			n.log.Debug().Err(result.ErrorOrNil()).Msg("network: bootstrap dial pass had failures")
		}
	}
	dialAll()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dialAll()
		}
	}
}

// connNotifiee turns raw libp2p connection lifecycle callbacks into
// Network events (§6).
type connNotifiee struct {
	events chan<- Event
}

func (c *connNotifiee) Connected(_ network.Network, conn network.Conn) {
	emit(c.events, newEvent(EventConnectionEstablished, withPeer(conn.RemotePeer())))
}
func (c *connNotifiee) Disconnected(_ network.Network, conn network.Conn) {
	emit(c.events, newEvent(EventConnectionClosed, withPeer(conn.RemotePeer())))
}
func (c *connNotifiee) Listen(network.Network, multiaddr.Multiaddr)      {}
func (c *connNotifiee) ListenClose(network.Network, multiaddr.Multiaddr) {}

// Events returns the channel every discovery, gossip, and DHT event is
// published to. It is buffered and non-blocking on the sender side: a
// slow consumer drops events rather than stalling the network.
func (n *Network) Events() <-chan Event { return n.events }

// Host exposes the underlying libp2p host, e.g. for printing this node's
// listen addresses at startup.
func (n *Network) Host() host.Host { return n.host }

// RoutingTableSize reports how many peers are in this node's Kademlia
// routing table, a rough health signal for DHT quorum reachability.
func (n *Network) RoutingTableSize() int {
	if n.kad == nil {
		return 0
	}
	return n.kad.RoutingTable().Size()
}

// PublishReceipt gossips r to the receipts topic.
func (n *Network) PublishReceipt(ctx context.Context, r invocation.Receipt) error {
	return n.gossip.Publish(ctx, r)
}

// PutReceipt replicates r into the DHT under the instruction CID it ran.
func (n *Network) PutReceipt(ctx context.Context, r invocation.Receipt) (cid.Cid, error) {
	return n.dht.PutReceipt(ctx, r)
}

// GetReceipt looks up the receipt for instructionCID via the DHT.
func (n *Network) GetReceipt(ctx context.Context, instructionCID cid.Cid) (invocation.Receipt, error) {
	return n.dht.GetReceipt(ctx, instructionCID)
}

// PutWorkflowInfo replicates info into the DHT under its workflow CID.
func (n *Network) PutWorkflowInfo(ctx context.Context, info workflow.Info) error {
	return n.dht.PutWorkflowInfo(ctx, info)
}

// GetWorkflowInfo fetches a workflow's replicated progress record.
func (n *Network) GetWorkflowInfo(ctx context.Context, workflowCID cid.Cid) (workflow.Info, error) {
	return n.dht.GetWorkflowInfo(ctx, workflowCID)
}

// FetchReceiptFrom asks a specific peer directly for a receipt, the
// request/response fallback used when both the local cache and DHT
// quorum miss (§4.4).
func (n *Network) FetchReceiptFrom(ctx context.Context, peerID peer.ID, instructionCID cid.Cid) (invocation.Receipt, bool, error) {
	return n.reqResp.Fetch(ctx, peerID, instructionCID)
}

// Close tears down the pubsub topic and DHT; it does not stop the
// ComponentManager's workers, which are owned by the caller's Start/Done
// lifecycle.
func (n *Network) Close() error {
	n.gossip.Close()
	if n.kad != nil {
		_ = n.kad.Close()
	}
	return n.host.Close()
}
