// Package finality implements D4: the finality oracle sitting atop D1's
// vertex weights and D3's commit certificates. Grounded on
// luxfi-consensus/confidence/threshold.go's confidence-accumulation idiom,
// adapted from a poll-counter to the cumulative-weight-vs-stake-threshold
// rule spec.md §4.12 specifies, and tracking monotone finalization the way
// luxfi-consensus/confidence's `finalized bool` never reverts once set.
package finality

import (
	"sync"

	"github.com/ruvnet/daa-sub007/dag"
	"github.com/ruvnet/daa-sub007/ids"
	"github.com/ruvnet/daa-sub007/voting"
)

// Oracle tracks confirmed and finalized vertices.
//
// A vertex is confirmed when its cumulative_weight >= finality_threshold *
// total_stake and it lies under a committed block. It is finalized when a
// D3 commit certificate's block_hash equals the vertex id. Finality is
// monotone: FinalizedSet only grows.
type Oracle struct {
	mu                sync.RWMutex
	store             *dag.Store
	totalStake        uint64
	finalityThreshold float64
	committed         map[ids.VertexId]struct{}
	confirmed         map[ids.VertexId]struct{}
	finalized         map[ids.VertexId]struct{}
}

// New constructs an Oracle for a given total stake and threshold fraction
// (e.g. 0.67 for two-thirds).
func New(store *dag.Store, totalStake uint64, finalityThreshold float64) *Oracle {
	return &Oracle{
		store:             store,
		totalStake:        totalStake,
		finalityThreshold: finalityThreshold,
		committed:         make(map[ids.VertexId]struct{}),
		confirmed:         make(map[ids.VertexId]struct{}),
		finalized:         make(map[ids.VertexId]struct{}),
	}
}

// ObserveCommit records that a D3 Certificate committed block_hash,
// finalizing the corresponding vertex (and re-running confirmation for
// its ancestry, since "lies under a committed block" now holds for them).
func (o *Oracle) ObserveCommit(cert *voting.Certificate) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.committed[cert.BlockHash] = struct{}{}
	o.finalized[cert.BlockHash] = struct{}{}
	o.recomputeConfirmedLocked()
}

// RecomputeConfirmed re-evaluates confirmation for every vertex under a
// committed block against the current D1 weights. Call after D1/D2
// mutate the weight table.
func (o *Oracle) RecomputeConfirmed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recomputeConfirmedLocked()
}

func (o *Oracle) recomputeConfirmedLocked() {
	threshold := o.finalityThreshold * float64(o.totalStake)
	for committedID := range o.committed {
		o.walkAndConfirm(committedID, threshold)
	}
}

func (o *Oracle) walkAndConfirm(id ids.VertexId, threshold float64) {
	visited := make(map[ids.VertexId]struct{})
	var walk func(ids.VertexId)
	walk = func(cur ids.VertexId) {
		if _, seen := visited[cur]; seen {
			return
		}
		visited[cur] = struct{}{}

		w, ok := o.store.Weight(cur)
		if ok && w.CumulativeWeight >= threshold {
			o.confirmed[cur] = struct{}{}
		}
		for _, p := range o.store.Parents(cur) {
			walk(p)
		}
	}
	walk(id)
}

// IsConfirmed reports whether id is confirmed.
func (o *Oracle) IsConfirmed(id ids.VertexId) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.confirmed[id]
	return ok
}

// IsFinalized reports whether id is finalized. Once true, always true.
func (o *Oracle) IsFinalized(id ids.VertexId) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.finalized[id]
	return ok
}

// FinalizedSet returns a snapshot of every finalized vertex id.
func (o *Oracle) FinalizedSet() []ids.VertexId {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ids.VertexId, 0, len(o.finalized))
	for id := range o.finalized {
		out = append(out, id)
	}
	return out
}
