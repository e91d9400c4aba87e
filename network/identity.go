// Package network implements peer identity, gossipsub receipt
// distribution, DHT-backed receipt/workflow-info replication with
// quorum tracking, request/response fallback, and peer discovery (§4.4,
// §6).
package network

import (
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multibase"

	"github.com/ipvm-wg/homestar/invocation"
)

// Identity is this node's libp2p keypair and derived addressing (§6): an
// Ed25519 or secp256k1 keypair loaded from a PEM file, generated fresh, or
// derived from a 32-byte seed.
type Identity struct {
	Private crypto.PrivKey
	Public  crypto.PubKey
	PeerID  peer.ID
}

// GenerateIdentity creates a fresh Ed25519 keypair.
func GenerateIdentity() (Identity, error) {
	priv, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("network: generate ed25519 key: %w", err)
	}
	return identityFromKeypair(priv, pub)
}

// LoadIdentity reads a PEM-encoded private key from path, as written by
// SaveIdentity: the PEM block's bytes are libp2p's own protobuf key
// encoding (crypto.UnmarshalPrivateKey), not PKCS#8, so a PKCS#8 key file
// from other tooling is rejected. Both Ed25519 and secp256k1 keys are
// accepted.
func LoadIdentity(path string) (Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, fmt.Errorf("network: read identity file %s: %w", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return Identity{}, fmt.Errorf("network: %s is not PEM-encoded", path)
	}
	priv, err := crypto.UnmarshalPrivateKey(block.Bytes)
	if err != nil {
		return Identity{}, fmt.Errorf("network: unmarshal private key from %s: %w", path, err)
	}
	return identityFromKeypair(priv, priv.GetPublic())
}

// IdentityFromSeed derives a deterministic Ed25519 identity from a
// 32-byte seed, the "derived from a configured seed" path of §6.
func IdentityFromSeed(seed []byte) (Identity, error) {
	if len(seed) != 32 {
		return Identity{}, fmt.Errorf("network: seed must be 32 bytes, got %d", len(seed))
	}
	priv, pub, err := crypto.GenerateEd25519Key(deterministicReader{seed: seed})
	if err != nil {
		return Identity{}, fmt.Errorf("network: derive identity from seed: %w", err)
	}
	return identityFromKeypair(priv, pub)
}

// deterministicReader replays seed bytes (cycling if the caller reads
// more than len(seed)) so crypto.GenerateEd25519Key becomes a
// deterministic derivation instead of a true random draw.
type deterministicReader struct {
	seed []byte
	pos  int
}

func (r deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.seed[(r.pos+i)%len(r.seed)]
	}
	return len(p), nil
}

func identityFromKeypair(priv crypto.PrivKey, pub crypto.PubKey) (Identity, error) {
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return Identity{}, fmt.Errorf("network: derive peer id: %w", err)
	}
	return Identity{Private: priv, Public: pub, PeerID: id}, nil
}

// SaveIdentity writes priv as a PEM file at path. The "PRIVATE KEY" block
// holds libp2p's protobuf key encoding (crypto.MarshalPrivateKey), not
// PKCS#8.
func SaveIdentity(path string, priv crypto.PrivKey) error {
	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("network: marshal private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: raw}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// IssuerDID renders the node's public key as the did:key issuer
// identifier carried on receipts it produces (§3 `iss`, §6).
func (id Identity) IssuerDID() (invocation.IssuerDID, error) {
	raw, err := crypto.MarshalPublicKey(id.Public)
	if err != nil {
		return "", fmt.Errorf("network: marshal public key: %w", err)
	}
	enc, err := multibase.Encode(multibase.Base58BTC, raw)
	if err != nil {
		return "", fmt.Errorf("network: multibase-encode public key: %w", err)
	}
	return invocation.IssuerDID("did:key:" + enc), nil
}

// Sign signs data with the node's private key.
func (id Identity) Sign(data []byte) ([]byte, error) {
	return id.Private.Sign(data)
}
