package network

// Config configures a Network's transport, discovery, and DHT quorum
// behavior (§4.4, §6).
type Config struct {
	// ListenAddrs are multiaddrs the libp2p host listens on, e.g.
	// "/ip4/0.0.0.0/tcp/4001".
	ListenAddrs []string
	// BootstrapPeers are multiaddrs (with a trailing /p2p/<id>) dialed at
	// startup and redialed if the connection is lost.
	BootstrapPeers []string
	// Quorum is the number of matching DHT values a Get must observe
	// before it is trusted (§4.4). Defaults to 1 (no quorum requirement)
	// if left at zero.
	Quorum int
	// ReceiptCacheSize bounds the in-memory LRU receipt cache size.
	ReceiptCacheSize int
	// EnableMDNS turns on local-network peer discovery.
	EnableMDNS bool
}

// DefaultConfig returns reasonable defaults for a single-machine test
// deployment: local discovery on, no bootstrap peers, quorum of 1.
func DefaultConfig() Config {
	return Config{
		ListenAddrs:      []string{"/ip4/0.0.0.0/tcp/0"},
		Quorum:           1,
		ReceiptCacheSize: 4096,
		EnableMDNS:       true,
	}
}

func (c Config) quorumOrDefault() int {
	if c.Quorum < 1 {
		return 1
	}
	return c.Quorum
}
