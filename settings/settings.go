// Package settings binds the node's runtime configuration to CLI flags and
// environment variables (flags take precedence over the environment),
// using the pflag-then-viper wiring pattern the teacher repository's
// cmd/bootstrap and network/netconf packages use (§1/§2 ambient stack).
// No config file is read.
package settings

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag names double as viper keys, matching netconf's convention of
// sharing one string between the CLI flag and the config lookup.
const (
	flagIdentityPath     = "identity-path"
	flagIdentitySeed     = "identity-seed"
	flagListenAddrs      = "listen-addrs"
	flagBootstrapPeers   = "bootstrap-peers"
	flagEnableMDNS       = "mdns"
	flagQuorum           = "quorum"
	flagReceiptCacheSize = "receipt-cache-size"
	flagDBPath           = "db-path"
	flagBlockStoreURL    = "block-store-timeout"
	flagSandboxMemory    = "sandbox-default-memory-bytes"
	flagSandboxTimeout   = "sandbox-default-timeout"
	flagConcurrency      = "worker-concurrency"
)

// Config is the fully resolved node configuration.
type Config struct {
	IdentityPath   string
	IdentitySeed   string
	ListenAddrs    []string
	BootstrapPeers []string
	EnableMDNS     bool
	Quorum         int

	ReceiptCacheSize int
	DBPath           string

	BlockStoreTimeout time.Duration

	SandboxDefaultMemoryBytes uint64
	SandboxDefaultTimeout     time.Duration

	WorkerConcurrency int
}

// Default returns the configuration used when no flags or environment
// variables override it — a single-machine dev node.
func Default() Config {
	return Config{
		IdentityPath:              "",
		ListenAddrs:               []string{"/ip4/0.0.0.0/tcp/0"},
		EnableMDNS:                true,
		Quorum:                    1,
		ReceiptCacheSize:          4096,
		DBPath:                    "homestar.db",
		BlockStoreTimeout:         30 * time.Second,
		SandboxDefaultMemoryBytes: 4 << 30,
		SandboxDefaultTimeout:     100 * time.Second,
		WorkerConcurrency:         4,
	}
}

// BindFlags registers every setting on flags with its Default value,
// mirroring netconf.InitializeNetworkFlags's one-call-per-field style.
func BindFlags(flags *pflag.FlagSet, def Config) {
	flags.String(flagIdentityPath, def.IdentityPath, "path to a PEM peer identity key as written by `homestar keygen`; generated if empty and no seed is set")
	flags.String(flagIdentitySeed, def.IdentitySeed, "hex-encoded 32-byte seed to derive a deterministic peer identity")
	flags.StringSlice(flagListenAddrs, def.ListenAddrs, "multiaddrs to listen on")
	flags.StringSlice(flagBootstrapPeers, def.BootstrapPeers, "multiaddrs (with /p2p/<id>) of peers to bootstrap from")
	flags.Bool(flagEnableMDNS, def.EnableMDNS, "enable mDNS peer discovery on the local network")
	flags.Int(flagQuorum, def.Quorum, "number of matching DHT values required before a lookup is trusted")
	flags.Int(flagReceiptCacheSize, def.ReceiptCacheSize, "max entries in the in-memory receipt cache")
	flags.String(flagDBPath, def.DBPath, "path to the durable SQLite store")
	flags.Duration(flagBlockStoreURL, def.BlockStoreTimeout, "timeout for HTTPS resource fetches")
	flags.Uint64(flagSandboxMemory, def.SandboxDefaultMemoryBytes, "default per-task memory cap in bytes")
	flags.Duration(flagSandboxTimeout, def.SandboxDefaultTimeout, "default per-task wall-clock timeout")
	flags.Int(flagConcurrency, def.WorkerConcurrency, "max concurrent task executions per dispatch batch")
}

// FromViper resolves a Config from v, which the caller has already bound
// to a pflag.FlagSet (via viper.BindPFlags) and to the environment (via
// viper.AutomaticEnv), so a set flag wins over the environment, which
// wins over the flag default. An unset bootstrap-peers list resolves to
// nil, as in Default.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		IdentityPath:              v.GetString(flagIdentityPath),
		IdentitySeed:              v.GetString(flagIdentitySeed),
		ListenAddrs:               v.GetStringSlice(flagListenAddrs),
		BootstrapPeers:            v.GetStringSlice(flagBootstrapPeers),
		EnableMDNS:                v.GetBool(flagEnableMDNS),
		Quorum:                    v.GetInt(flagQuorum),
		ReceiptCacheSize:          v.GetInt(flagReceiptCacheSize),
		DBPath:                    v.GetString(flagDBPath),
		BlockStoreTimeout:         v.GetDuration(flagBlockStoreURL),
		SandboxDefaultMemoryBytes: v.GetUint64(flagSandboxMemory),
		SandboxDefaultTimeout:     v.GetDuration(flagSandboxTimeout),
		WorkerConcurrency:         v.GetInt(flagConcurrency),
	}
	if len(cfg.BootstrapPeers) == 0 {
		cfg.BootstrapPeers = nil
	}
	if cfg.Quorum < 1 {
		return Config{}, fmt.Errorf("settings: %s must be >= 1", flagQuorum)
	}
	if cfg.IdentityPath != "" && cfg.IdentitySeed != "" {
		return Config{}, fmt.Errorf("settings: only one of %s or %s may be set", flagIdentityPath, flagIdentitySeed)
	}
	return cfg, nil
}
