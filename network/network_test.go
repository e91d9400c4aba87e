package network_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/irrecoverable"
	"github.com/ipvm-wg/homestar/network"
	"github.com/ipvm-wg/homestar/store"
)

func TestIdentityFromSeedIsDeterministic(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	a, err := network.IdentityFromSeed(seed)
	require.NoError(t, err)
	b, err := network.IdentityFromSeed(seed)
	require.NoError(t, err)
	require.Equal(t, a.PeerID, b.PeerID)

	did, err := a.IssuerDID()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(did), "did:key:"))
}

func TestIdentityFromSeedRejectsWrongLength(t *testing.T) {
	_, err := network.IdentityFromSeed([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestGenerateIdentityProducesDistinctPeers(t *testing.T) {
	a, err := network.GenerateIdentity()
	require.NoError(t, err)
	b, err := network.GenerateIdentity()
	require.NoError(t, err)
	require.NotEqual(t, a.PeerID, b.PeerID)
}

func TestIdentitySignVerifyRoundTrip(t *testing.T) {
	id, err := network.GenerateIdentity()
	require.NoError(t, err)
	msg := []byte("a receipt worth signing")
	sig, err := id.Sign(msg)
	require.NoError(t, err)
	ok, err := id.Public.Verify(msg, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

// TestTwoNodesGossipReceipts brings up two libp2p hosts, connects them
// directly (bypassing discovery, which is best-effort and slow in CI),
// and confirms a receipt published on one Network's gossip topic reaches
// the other's receipt cache.
func TestTwoNodesGossipReceipts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	idA, err := network.GenerateIdentity()
	require.NoError(t, err)
	idB, err := network.GenerateIdentity()
	require.NoError(t, err)

	cacheA, err := store.NewReceiptCache(16)
	require.NoError(t, err)
	cacheB, err := store.NewReceiptCache(16)
	require.NoError(t, err)

	cfg := network.DefaultConfig()
	cfg.EnableMDNS = false

	nodeA, err := network.New(ctx, zerolog.Nop(), idA, cfg, cacheA)
	require.NoError(t, err)
	defer nodeA.Close()

	nodeB, err := network.New(ctx, zerolog.Nop(), idB, cfg, cacheB)
	require.NoError(t, err)
	defer nodeB.Close()

	sigCtxA, _ := irrecoverable.WithSignalerContext(ctx)
	nodeA.Start(sigCtxA)
	sigCtxB, _ := irrecoverable.WithSignalerContext(ctx)
	nodeB.Start(sigCtxB)
	<-nodeA.Ready()
	<-nodeB.Ready()

	addrInfoA := peer.AddrInfo{ID: nodeA.Host().ID(), Addrs: nodeA.Host().Addrs()}
	require.NoError(t, nodeB.Host().Connect(ctx, addrInfoA))

	// Give gossipsub's mesh a moment to form after the direct dial.
	time.Sleep(500 * time.Millisecond)

	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)
	instr, err := invocation.NewInstruction(resource, "run", nil, nil)
	require.NoError(t, err)
	instrCID, err := instr.CID()
	require.NoError(t, err)

	receipt := invocation.Receipt{
		Ran: invocation.NewPointer(instrCID),
		Out: invocation.Ok(ipld.String("done")),
	}

	require.NoError(t, nodeA.PublishReceipt(ctx, receipt))

	deadline := time.After(10 * time.Second)
	for {
		if _, ok := cacheB.Lookup(instrCID); ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("receipt never arrived at node B via gossip")
		case <-time.After(100 * time.Millisecond):
		}
	}
}
