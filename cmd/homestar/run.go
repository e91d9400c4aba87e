package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ipvm-wg/homestar/irrecoverable"
	"github.com/ipvm-wg/homestar/network"
	"github.com/ipvm-wg/homestar/runner"
	"github.com/ipvm-wg/homestar/sandbox"
	"github.com/ipvm-wg/homestar/settings"
	"github.com/ipvm-wg/homestar/store"
	"github.com/ipvm-wg/homestar/worker"
)

var runWSAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the node: network, worker pool, and event bus",
	Run:   runCmdRun,
}

func init() {
	runCmd.Flags().StringVar(&runWSAddr, "ws-addr", "", "if set, serve the debug event WebSocket on this address (e.g. :8787)")
}

func runCmdRun(cmd *cobra.Command, args []string) {
	cfg := loadSettings()

	identity, err := loadOrCreateIdentity(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve peer identity")
	}
	did, err := identity.IssuerDID()
	if err != nil {
		log.Fatal().Err(err).Msg("derive issuer DID")
	}
	log.Info().Str("peer_id", identity.PeerID.String()).Str("issuer", string(did)).Msg("identity resolved")

	cache, err := store.NewReceiptCache(cfg.ReceiptCacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("build receipt cache")
	}
	durable, err := store.NewDurableStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open durable store")
	}
	defer durable.Close()

	blocks := store.NewHTTPBlockStore(cfg.BlockStoreTimeout)
	engine := sandbox.NewEngine()
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	netCfg := network.Config{
		ListenAddrs:      cfg.ListenAddrs,
		BootstrapPeers:   cfg.BootstrapPeers,
		Quorum:           cfg.Quorum,
		ReceiptCacheSize: cfg.ReceiptCacheSize,
		EnableMDNS:       cfg.EnableMDNS,
	}
	net, err := network.New(ctx, log, identity, netCfg, cache)
	if err != nil {
		log.Fatal().Err(err).Msg("build network")
	}

	sigs := worker.NewStaticSignatureRegistry()
	newDeps := func() worker.Deps {
		return worker.Deps{
			Log:        log,
			Executor:   worker.SandboxExecutor{Log: log, Engine: engine, Blocks: blocks, Retries: sandbox.DefaultFetchRetryPolicy()},
			Signatures: sigs,
			Cache:      cache,
			Durable:    durable,
			Network:    net,
			Issuer:     did,
			Sign:       identity.Sign,
			Concurrency: cfg.WorkerConcurrency,
		}
	}

	r := runner.New(log, net, newDeps)

	if runWSAddr != "" {
		broadcaster := runner.NewWebSocketBroadcaster(log, r)
		go serveWebSocket(runWSAddr, broadcaster)
	}

	signalerCtx, errCh := irrecoverable.WithSignalerContext(ctx)
	r.Start(signalerCtx)

	select {
	case <-r.Ready():
		log.Info().Msg("homestar node ready")
	case <-ctx.Done():
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("unhandled irrecoverable error, shutting down")
	case <-signalChan:
		log.Info().Msg("signal received, shutting down")
	}

	cancel()
	<-r.Done()
	log.Info().Msg("homestar node shutdown complete")
}

func loadOrCreateIdentity(cfg settings.Config) (network.Identity, error) {
	switch {
	case cfg.IdentitySeed != "":
		seed, err := decodeSeed(cfg.IdentitySeed)
		if err != nil {
			return network.Identity{}, err
		}
		return network.IdentityFromSeed(seed)
	case cfg.IdentityPath != "":
		if _, err := os.Stat(cfg.IdentityPath); err == nil {
			return network.LoadIdentity(cfg.IdentityPath)
		}
		identity, err := network.GenerateIdentity()
		if err != nil {
			return network.Identity{}, err
		}
		return identity, network.SaveIdentity(cfg.IdentityPath, identity.Private)
	default:
		return network.GenerateIdentity()
	}
}
