// Package tipselect implements D2: tip selection over a dag.Store.
// Grounded on qudag/core/dag/src/tip_selection.rs's AdvancedTipSelection —
// the random/weighted_random/mcmc_walk algorithms and is_valid_tip check
// are carried over verbatim in semantics, adapted from the Rust source's
// internal HashSet/HashMap bookkeeping to read directly off a shared
// dag.Store instead of duplicating its adjacency tables.
package tipselect

import (
	"math"
	"math/rand"
	"time"

	"github.com/ruvnet/daa-sub007/dag"
	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/ids"
)

// Algorithm selects which parent-selection strategy Select uses.
type Algorithm uint8

const (
	Random Algorithm = iota
	WeightedRandom
	MCMCWalk
)

// Config tunes tip selection, per spec.md §4.10's common config.
type Config struct {
	TipCount       int
	MaxAge         time.Duration
	MinConfidence  float64
	MCMCWalkLength int
	Alpha          float64
}

// DefaultConfig matches the Rust source's TipSelectionConfig::default.
func DefaultConfig() Config {
	return Config{
		TipCount:       2,
		MaxAge:         time.Hour,
		MinConfidence:  0.5,
		MCMCWalkLength: 1000,
		Alpha:          0.001,
	}
}

// Selector picks parent vertices for a new vertex from a dag.Store.
type Selector struct {
	store *dag.Store
	cfg   Config
	rng   *rand.Rand
}

// New constructs a Selector. rng may be nil to use a source seeded from
// the current time; tests inject a seeded *rand.Rand for determinism.
func New(store *dag.Store, cfg Config, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{store: store, cfg: cfg, rng: rng}
}

// IsValidTip implements §4.10's tip validity: no children, age within
// max_age, cumulative_weight >= min_confidence.
func (s *Selector) IsValidTip(id ids.VertexId, now time.Time) bool {
	v, ok := s.store.Get(id)
	if !ok {
		return false
	}
	if len(s.store.Children(id)) > 0 {
		return false
	}
	if now.Sub(v.Timestamp) > s.cfg.MaxAge {
		return false
	}
	w, ok := s.store.Weight(id)
	if ok && w.CumulativeWeight < s.cfg.MinConfidence {
		return false
	}
	return true
}

// validTips returns the current tip set filtered through IsValidTip, the
// filter every selection algorithm must apply before choosing among tips
// per §4.10 — selection never returns a stale or under-confirmed tip.
func (s *Selector) validTips(now time.Time) []ids.VertexId {
	all := s.store.Tips()
	out := make([]ids.VertexId, 0, len(all))
	for _, t := range all {
		if s.IsValidTip(t, now) {
			out = append(out, t)
		}
	}
	return out
}

// Select dispatches to the configured algorithm.
func (s *Selector) Select(algo Algorithm, now time.Time) ([]ids.VertexId, error) {
	switch algo {
	case Random:
		return s.randomSelection(now)
	case WeightedRandom:
		return s.weightedRandomSelection(now)
	case MCMCWalk:
		return s.mcmcWalkSelection(now)
	default:
		return nil, errkind.New(errkind.Validation, "tipselect: unknown algorithm")
	}
}

func (s *Selector) randomSelection(now time.Time) ([]ids.VertexId, error) {
	tips := s.validTips(now)
	if len(tips) == 0 {
		return nil, errkind.New(errkind.Resource, "tipselect: no valid tips available")
	}
	s.rng.Shuffle(len(tips), func(i, j int) { tips[i], tips[j] = tips[j], tips[i] })
	if len(tips) > s.cfg.TipCount {
		tips = tips[:s.cfg.TipCount]
	}
	return tips, nil
}

func (s *Selector) weightedRandomSelection(now time.Time) ([]ids.VertexId, error) {
	available := s.validTips(now)
	if len(available) == 0 {
		return nil, errkind.New(errkind.Resource, "tipselect: no valid tips available")
	}

	selected := make([]ids.VertexId, 0, s.cfg.TipCount)
	for len(selected) < s.cfg.TipCount && len(available) > 0 {
		weights := make([]float64, len(available))
		var total float64
		for i, t := range available {
			w, ok := s.store.Weight(t)
			if !ok {
				weights[i] = 1
			} else {
				weights[i] = w.CumulativeWeight
			}
			total += weights[i]
		}

		var idx int
		if total == 0 {
			idx = s.rng.Intn(len(available))
		} else {
			target := s.rng.Float64() * total
			var cum float64
			for i, w := range weights {
				cum += w
				if cum >= target {
					idx = i
					break
				}
			}
		}
		selected = append(selected, available[idx])
		available = append(available[:idx], available[idx+1:]...)
	}
	return selected, nil
}

// mcmcWalk walks from a low-weight origin toward a tip, stepping to a
// child chosen with probability proportional to exp(-alpha*cum_weight),
// bailing out early at a dead end (no children => reached a tip).
func (s *Selector) mcmcWalk(start ids.VertexId) ids.VertexId {
	current := start
	for i := 0; i < s.cfg.MCMCWalkLength; i++ {
		children := s.store.Children(current)
		if len(children) == 0 {
			return current
		}

		weights := make([]float64, len(children))
		var total float64
		for i, c := range children {
			w, ok := s.store.Weight(c)
			cw := 1.0
			if ok {
				cw = w.CumulativeWeight
			}
			weights[i] = math.Exp(-s.cfg.Alpha * cw)
			total += weights[i]
		}

		if total == 0 {
			current = children[s.rng.Intn(len(children))]
			continue
		}
		target := s.rng.Float64() * total
		var cum float64
		next := children[len(children)-1]
		for i, w := range weights {
			cum += w
			if cum >= target {
				next = children[i]
				break
			}
		}
		current = next
	}
	return current
}

// mcmcWalkSelection runs tip_count independent walks from low-weight
// (approver-free) origins among the valid tips, de-duplicating results and
// falling back to random selection on a dead end, per §4.10.
func (s *Selector) mcmcWalkSelection(now time.Time) ([]ids.VertexId, error) {
	tips := s.validTips(now)
	if len(tips) == 0 {
		return nil, errkind.New(errkind.Resource, "tipselect: no valid tips available")
	}

	seen := make(map[ids.VertexId]struct{})
	var selected []ids.VertexId

	for i := 0; i < s.cfg.TipCount; i++ {
		start := s.genesisLikeOrigin(tips)
		candidate := s.mcmcWalk(start)
		if _, dup := seen[candidate]; dup || !s.IsValidTip(candidate, now) {
			fallback, err := s.randomSelection(now)
			if err != nil || len(fallback) == 0 {
				continue
			}
			candidate = fallback[0]
		}
		if _, dup := seen[candidate]; !dup {
			seen[candidate] = struct{}{}
			selected = append(selected, candidate)
		}
	}
	if len(selected) == 0 {
		return nil, errkind.New(errkind.Resource, "tipselect: mcmc walk produced no tips")
	}
	return selected, nil
}

// genesisLikeOrigin picks the first valid tip with zero approvers (a
// lowest-weight vertex) to start the walk from, falling back to a random
// tip when none exists.
func (s *Selector) genesisLikeOrigin(tips []ids.VertexId) ids.VertexId {
	for _, t := range tips {
		w, ok := s.store.Weight(t)
		if ok && w.Approvers == 0 {
			return t
		}
	}
	return tips[s.rng.Intn(len(tips))]
}
