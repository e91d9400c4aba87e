package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ipvm-wg/homestar/network"
	"github.com/ipvm-wg/homestar/runner"
	"github.com/ipvm-wg/homestar/sandbox"
	"github.com/ipvm-wg/homestar/store"
	"github.com/ipvm-wg/homestar/worker"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Local workflow utilities",
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <submission.json>",
	Short: "Execute a workflow submission locally, without a running node",
	Args:  cobra.ExactArgs(1),
	Run:   workflowRunCmdRun,
}

func init() {
	workflowCmd.AddCommand(workflowRunCmd)
}

// workflowRunCmdRun runs a §6-shaped workflow submission entirely
// in-process against this node's local cache and durable store, with no
// gossip/DHT replication — a debugging aid for exercising a workflow
// without standing up a network, not the RPC surface itself (§1).
func workflowRunCmdRun(cmd *cobra.Command, args []string) {
	cfg := loadSettings()

	raw, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("read submission file")
	}

	identity, err := loadOrCreateIdentity(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve peer identity")
	}
	did, err := identity.IssuerDID()
	if err != nil {
		log.Fatal().Err(err).Msg("derive issuer DID")
	}

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

	sigs := worker.NewStaticSignatureRegistry()
	var net *network.Network // no gossip/DHT replication in local mode

	r := runner.New(log, net, func() worker.Deps {
		return worker.Deps{
			Log:         log,
			Executor:    worker.SandboxExecutor{Log: log, Engine: engine, Blocks: blocks, Retries: sandbox.DefaultFetchRetryPolicy()},
			Signatures:  sigs,
			Cache:       cache,
			Durable:     durable,
			Network:     nil,
			Issuer:      did,
			Sign:        identity.Sign,
			Concurrency: cfg.WorkerConcurrency,
		}
	})

	events, cancel := r.Subscribe(64)
	defer cancel()
	go func() {
		for e := range events {
			if e.Kind == runner.EventKindReceiptNotified {
				fmt.Printf("task %q: receipt %s (replayed=%v)\n", e.TaskName, e.ReceiptCID, e.Replayed)
			}
		}
	}()

	workflowCID, result, err := r.Submit(context.Background(), raw)
	if err != nil {
		log.Fatal().Err(err).Msg("run workflow")
	}

	fmt.Printf("workflow %s: %s (%d/%d tasks)\n", workflowCID, result.Status, result.Info.ProgressCount, result.Info.NumTasks)
}
