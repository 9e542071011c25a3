// Package roundcoord implements T3: collecting per-worker GradientBatch
// submissions for a round and returning them to the caller, or abandoning
// the round with a Timeout error on deadline with too few contributors.
// The coordinator neither broadcasts the aggregate nor reschedules an
// abandoned round.
// Grounded on
// original_source/prime-rust/crates/prime-core/src/training.rs::RoundCoordinator,
// expanded from its fixed num_workers barrier into the deadline/min-peers
// behavior spec.md §4.8 specifies.
package roundcoord

import (
	"time"

	"github.com/ruvnet/daa-sub007/config"
	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/ids"
	"github.com/ruvnet/daa-sub007/peer"
	"github.com/ruvnet/daa-sub007/training"
)

// Config tunes one round's collection window.
type Config struct {
	MinPeersForAggregation int
	Deadline                time.Duration
}

// Result is what a round produces: the collected batches and the set of
// workers who missed the deadline.
type Result struct {
	Batches []training.GradientBatch
	Missed  []ids.PeerId
}

// Coordinator collects GradientBatch messages for one round via a channel,
// modeled on the Rust RoundCoordinator's mpsc::Receiver loop, generalized
// to a deadline-or-complete race instead of a fixed worker-count barrier.
type Coordinator struct {
	ctx   *config.CoreContext
	peers *peer.Manager
	cfg   Config
}

// NewCoordinator constructs a round Coordinator.
func NewCoordinator(ctx *config.CoreContext, peers *peer.Manager, cfg Config) *Coordinator {
	return &Coordinator{ctx: ctx, peers: peers, cfg: cfg}
}

// CoordinateRound collects GradientBatch messages from batches until every
// expected worker in expectedWorkers has submitted or the deadline
// elapses. If at least MinPeersForAggregation have submitted by the
// deadline, the round succeeds with whatever arrived; workers that missed
// the deadline get peer.Manager.PenalizeTimeout, which moves their
// reputation toward peer.ReputationDecayTarget (it lowers a reputation
// only when it is above that target), and are reported in Result.Missed
// for the next round to skip.
func (c *Coordinator) CoordinateRound(expectedWorkers []ids.PeerId, batches <-chan training.GradientBatch) (Result, error) {
	expected := make(map[ids.PeerId]struct{}, len(expectedWorkers))
	for _, w := range expectedWorkers {
		expected[w] = struct{}{}
	}

	var received []training.GradientBatch
	seen := make(map[ids.PeerId]struct{})

	deadline := time.NewTimer(c.cfg.Deadline)
	defer deadline.Stop()

	for len(seen) < len(expected) {
		select {
		case batch, ok := <-batches:
			if !ok {
				return c.finish(expected, received, seen)
			}
			seen[batch.WorkerID] = struct{}{}
			received = append(received, batch)
		case <-deadline.C:
			return c.finish(expected, received, seen)
		}
	}
	return c.finish(expected, received, seen)
}

func (c *Coordinator) finish(expected map[ids.PeerId]struct{}, received []training.GradientBatch, seen map[ids.PeerId]struct{}) (Result, error) {
	if len(seen) < c.cfg.MinPeersForAggregation {
		return Result{}, errkind.New(errkind.Timeout, "roundcoord: round abandoned, below min_peers_for_aggregation")
	}

	var missed []ids.PeerId
	for w := range expected {
		if _, ok := seen[w]; !ok {
			missed = append(missed, w)
			if c.peers != nil {
				_ = c.peers.PenalizeTimeout(w)
			}
		}
	}
	return Result{Batches: received, Missed: missed}, nil
}
