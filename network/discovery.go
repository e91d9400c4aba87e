package network

import (
	"context"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/rs/zerolog"

	"github.com/libp2p/go-libp2p/core/host"
	libp2pnet "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

// rendezvousNamespace is the DHT advertisement string peers use to find
// each other when no bootstrap addresses are shared directly (§4.4).
const rendezvousNamespace = "/homestar/rendezvous/1.0.0"

// mdnsNotifee bridges libp2p's mDNS discovery callback into the Network's
// event stream and connection logic.
type mdnsNotifee struct {
	ctx    context.Context
	log    zerolog.Logger
	h      host.Host
	events chan<- Event
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	emit(n.events, newEvent(EventDiscoveredMDNS, withPeer(pi.ID)))
	if err := n.h.Connect(n.ctx, pi); err != nil {
		n.log.Debug().Err(err).Str("peer", pi.ID.String()).Msg("network: mdns-discovered peer unreachable")
	}
}

// startMDNS registers an mDNS discovery service that dials peers on the
// local network as soon as they're found.
func startMDNS(ctx context.Context, log zerolog.Logger, h host.Host, events chan<- Event) (io interface{ Close() error }, err error) {
	svc := mdns.NewMdnsService(h, "_homestar._udp", &mdnsNotifee{ctx: ctx, log: log, h: h, events: events})
	if err := svc.Start(); err != nil {
		return nil, err
	}
	return svc, nil
}

// rendezvousLoop periodically advertises this node under
// rendezvousNamespace and looks up other advertisers, dialing any not
// already connected. It runs as a component.Worker.
func rendezvousLoop(ctx context.Context, log zerolog.Logger, h host.Host, kad *dht.IpfsDHT, events chan<- Event) {
	routingDiscovery := drouting.NewRoutingDiscovery(kad)
	util.Advertise(ctx, routingDiscovery, rendezvousNamespace)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		peerCh, err := routingDiscovery.FindPeers(ctx, rendezvousNamespace)
		if err == nil {
			for pi := range peerCh {
				if pi.ID == h.ID() || len(pi.Addrs) == 0 {
					continue
				}
				if h.Network().Connectedness(pi.ID) == libp2pnet.Connected {
					continue
				}
				emit(events, newEvent(EventDiscoveredRendezvous, withPeer(pi.ID)))
				if err := h.Connect(ctx, pi); err != nil {
					log.Debug().Err(err).Str("peer", pi.ID.String()).Msg("network: rendezvous-discovered peer unreachable")
				}
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
