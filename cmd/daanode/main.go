// Command daanode wires a subset of the cores' packages together into one
// process: a peer manager and NAT traversal for connectivity and a
// DAG/tip-selection/finality stack for consensus, reporting to an audit
// sink, all sharing one config.CoreContext. It does not start the voting
// state machine, the DiLoCo trainer or the round coordinator.
// Grounded on luxfi-consensus/cmd/checker/main.go's flag-driven,
// logger-first entrypoint shape — no CLI framework is pulled in since none
// of the pack's go.mod files depend on one (DESIGN.md).
package main

import (
	"flag"
	"os"
	"time"

	"github.com/ruvnet/daa-sub007/audit"
	"github.com/ruvnet/daa-sub007/config"
	"github.com/ruvnet/daa-sub007/dag"
	"github.com/ruvnet/daa-sub007/finality"
	"github.com/ruvnet/daa-sub007/ids"
	"github.com/ruvnet/daa-sub007/log"
	"github.com/ruvnet/daa-sub007/metrics"
	"github.com/ruvnet/daa-sub007/nat"
	"github.com/ruvnet/daa-sub007/peer"
	"github.com/ruvnet/daa-sub007/tipselect"
)

func main() {
	nodeName := flag.String("node-name", "daanode", "human-readable node label for logging")
	stunServer := flag.String("stun-server", "", "STUN server address for NAT detection (host:port)")
	finalityThreshold := flag.Float64("finality-threshold", 0.67, "fraction of total stake required for a vertex to be confirmed")
	totalStake := flag.Uint64("total-stake", 1, "total validator stake, for finality threshold computation")
	flag.Parse()

	logger := log.NewProduction().With("node", *nodeName)
	reg := metrics.NewRegistry("daanode")
	ctx := config.New(logger, reg, nil)

	sink := audit.NewCoreContextSink(ctx)

	peers := peer.NewManager(ctx)
	sink.Event(audit.Event{Type: "peer_manager_started", Source: "peer", Ts: time.Now()})

	var stunConfig nat.StunConfig
	if *stunServer != "" {
		stunConfig = nat.StunConfig{Servers: []string{*stunServer}, RetryCount: 3, Timeout: 2 * time.Second}
	} else {
		stunConfig = nat.DefaultStunConfig()
	}
	traversal := nat.NewTraversal(ctx, stunConfig, nil, nat.UDPStunQuerier{}, nat.LocalHostCandidateSource{})
	if _, err := traversal.DetectNAT(); err != nil {
		logger.Warn("NAT detection failed, continuing with Unknown NAT type", "err", err)
	}
	sink.Event(audit.Event{
		Type:   "nat_detected",
		Source: "nat",
		Ts:     time.Now(),
		Data:   map[string]any{"nat_type": traversal.NatType().String()},
	})

	store := dag.New()
	var genesis ids.VertexId
	genesis[0] = 1
	if err := store.AddVertex(&dag.Vertex{ID: genesis, Height: 0, Timestamp: time.Now()}, time.Now()); err != nil {
		logger.Fatal("failed to seed genesis vertex", "err", err)
		os.Exit(1)
	}

	_ = tipselect.New(store, tipselect.DefaultConfig(), nil)
	oracle := finality.New(store, *totalStake, *finalityThreshold)

	sink.Health(audit.HealthSnapshot{Source: "daanode", Healthy: true, Detail: "startup complete", Ts: time.Now()})
	logger.Info("daanode started",
		"peers", peers.Len(),
		"finalized_vertices", len(oracle.FinalizedSet()),
	)
}
