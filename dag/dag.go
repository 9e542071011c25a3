// Package dag implements D1: the vertex/edge store underlying C1 consensus.
// Grounded on luxfi-consensus/dag/dag.go's map-backed tip bookkeeping,
// generalized from a flat block chain to a DAG with multiple parents and
// recursive cumulative-weight recomputation, per
// qudag/core/dag/src/tip_selection.rs's AdvancedTipSelection.add_vertex.
package dag

import (
	"sync"
	"time"

	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/ids"
)

// Vertex is one node in the DAG: a piece of payload approving zero or more
// parents.
type Vertex struct {
	ID        ids.VertexId
	Height    uint64
	Timestamp time.Time
	Parents   []ids.VertexId
	Payload   []byte
}

// Weight is a vertex's recomputed confidence bookkeeping (§4.9/§4.10).
type Weight struct {
	CumulativeWeight float64
	DirectWeight     float64
	Approvers        int
	LastUpdated      time.Time
}

// Store is the vertex/edge store: adjacency to parents, reverse adjacency
// to children, the tip set and per-vertex weights. Vertex insertion is
// linearized by a single writer lock; readers proceed concurrently, per
// spec.md §5's "Tip set and weights: single writer (D1/D2 coupled); many
// readers."
type Store struct {
	mu       sync.RWMutex
	vertices map[ids.VertexId]*Vertex
	parents  map[ids.VertexId][]ids.VertexId
	children map[ids.VertexId]map[ids.VertexId]struct{}
	tips     map[ids.VertexId]struct{}
	weights  map[ids.VertexId]*Weight
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		vertices: make(map[ids.VertexId]*Vertex),
		parents:  make(map[ids.VertexId][]ids.VertexId),
		children: make(map[ids.VertexId]map[ids.VertexId]struct{}),
		tips:     make(map[ids.VertexId]struct{}),
		weights:  make(map[ids.VertexId]*Weight),
	}
}

// AddVertex inserts v, requiring every parent already present with a
// strictly lower height (the acyclicity invariant from §4.9), removes each
// parent from the tip set, adds v as a new tip, and recomputes cumulative
// weight along the affected ancestry.
func (s *Store) AddVertex(v *Vertex, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vertices[v.ID]; exists {
		return errkind.New(errkind.Validation, "dag: vertex already present")
	}
	for _, p := range v.Parents {
		parent, ok := s.vertices[p]
		if !ok {
			return errkind.New(errkind.Validation, "dag: parent not present")
		}
		if parent.Height >= v.Height {
			return errkind.New(errkind.Validation, "dag: parent height must be less than vertex height")
		}
	}

	s.vertices[v.ID] = v
	s.parents[v.ID] = append([]ids.VertexId(nil), v.Parents...)

	for _, p := range v.Parents {
		delete(s.tips, p)
		if s.children[p] == nil {
			s.children[p] = make(map[ids.VertexId]struct{})
		}
		s.children[p][v.ID] = struct{}{}
	}
	s.tips[v.ID] = struct{}{}

	s.weights[v.ID] = &Weight{DirectWeight: 1, CumulativeWeight: 1, LastUpdated: now}
	s.recomputeAncestry(v.ID, now)

	return nil
}

// recomputeAncestry walks from v up through its parents, adding v's direct
// weight into each ancestor's cumulative weight and approver count. This
// is the Go-idiomatic iterative analogue of the Rust source's
// calculate_cumulative_weight_recursive DFS, run upward from the inserted
// vertex instead of downward from an arbitrary query vertex since every
// insertion only ever affects its own ancestors.
func (s *Store) recomputeAncestry(id ids.VertexId, now time.Time) {
	visited := make(map[ids.VertexId]struct{})
	var walk func(ids.VertexId)
	walk = func(cur ids.VertexId) {
		for _, p := range s.parents[cur] {
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			w, ok := s.weights[p]
			if !ok {
				w = &Weight{DirectWeight: 1}
				s.weights[p] = w
			}
			w.CumulativeWeight += s.weights[id].DirectWeight
			w.Approvers = len(s.children[p])
			w.LastUpdated = now
			walk(p)
		}
	}
	walk(id)
}

// HasVertex reports whether id is present.
func (s *Store) HasVertex(id ids.VertexId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vertices[id]
	return ok
}

// Get returns the stored vertex.
func (s *Store) Get(id ids.VertexId) (*Vertex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vertices[id]
	return v, ok
}

// Parents returns id's direct parents.
func (s *Store) Parents(id ids.VertexId) []ids.VertexId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ids.VertexId(nil), s.parents[id]...)
}

// Children returns id's direct children.
func (s *Store) Children(id ids.VertexId) []ids.VertexId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ids.VertexId, 0, len(s.children[id]))
	for c := range s.children[id] {
		out = append(out, c)
	}
	return out
}

// Weight returns id's current weight bookkeeping.
func (s *Store) Weight(id ids.VertexId) (Weight, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.weights[id]
	if !ok {
		return Weight{}, false
	}
	return *w, true
}

// Tips returns the current tip set.
func (s *Store) Tips() []ids.VertexId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ids.VertexId, 0, len(s.tips))
	for t := range s.tips {
		out = append(out, t)
	}
	return out
}

// PruneBelow removes every vertex at height <= h that is an ancestor of
// finalized, dropping the externalized edges in lockstep (§4.9).
func (s *Store) PruneBelow(h uint64, finalized ids.VertexId) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ancestors := make(map[ids.VertexId]struct{})
	var collect func(ids.VertexId)
	collect = func(id ids.VertexId) {
		if _, seen := ancestors[id]; seen {
			return
		}
		ancestors[id] = struct{}{}
		for _, p := range s.parents[id] {
			collect(p)
		}
	}
	collect(finalized)

	for id := range ancestors {
		v, ok := s.vertices[id]
		if !ok || v.Height > h {
			continue
		}
		for _, p := range s.parents[id] {
			if childSet := s.children[p]; childSet != nil {
				delete(childSet, id)
			}
		}
		// A surviving descendant's own parents slice may still name id;
		// strip it so Parents/HasVertex agree for every remaining vertex,
		// per §3's "an edge is present in both or neither" invariant.
		for child := range s.children[id] {
			s.parents[child] = removeVertexID(s.parents[child], id)
		}
		delete(s.vertices, id)
		delete(s.parents, id)
		delete(s.children, id)
		delete(s.weights, id)
		delete(s.tips, id)
	}
}

func removeVertexID(list []ids.VertexId, target ids.VertexId) []ids.VertexId {
	out := list[:0]
	for _, id := range list {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
