// Package allreduce implements T1: Ring, Tree, Butterfly and Hierarchical
// all-reduce over per-peer gradient vectors, all agreeing on the
// arithmetic mean to within a small numeric epsilon. Grounded on
// original_source/daa-compute/src/p2p/gradient.rs's
// ring_allreduce/tree_allreduce/butterfly_allreduce/hierarchical_allreduce.
package allreduce

import (
	"math"
	"sort"

	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/ids"
)

// Algorithm selects which all-reduce strategy Reduce uses.
type Algorithm uint8

const (
	Ring Algorithm = iota
	Tree
	Butterfly
	Hierarchical
)

func (a Algorithm) String() string {
	switch a {
	case Ring:
		return "ring"
	case Tree:
		return "tree"
	case Butterfly:
		return "butterfly"
	case Hierarchical:
		return "hierarchical"
	default:
		return "unknown"
	}
}

// Epsilon is the per-element numeric tolerance all algorithms must agree
// within for well-scaled inputs (§4.6).
const Epsilon = 1e-6

func sortedPeers(gradients map[ids.PeerId][]float32) []ids.PeerId {
	peers := make([]ids.PeerId, 0, len(gradients))
	for p := range gradients {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Less(peers[j]) })
	return peers
}

func validate(gradients map[ids.PeerId][]float32) (int, error) {
	if len(gradients) == 0 {
		return 0, errkind.New(errkind.Validation, "allreduce: no contributors")
	}
	var n int
	first := true
	for _, g := range gradients {
		if first {
			n = len(g)
			first = false
			continue
		}
		if len(g) != n {
			return 0, errkind.New(errkind.Validation, "allreduce: mismatched vector lengths")
		}
	}
	return n, nil
}

// Reduce dispatches to the selected algorithm. All algorithms return the
// arithmetic mean of gradients across contributors.
func Reduce(algo Algorithm, gradients map[ids.PeerId][]float32, regionOf func(ids.PeerId) byte) ([]float32, error) {
	if _, err := validate(gradients); err != nil {
		return nil, err
	}
	switch algo {
	case Ring:
		return ringReduce(gradients)
	case Tree:
		return treeReduce(gradients)
	case Butterfly:
		return butterflyReduce(gradients)
	case Hierarchical:
		if regionOf == nil {
			regionOf = DefaultRegionFunc
		}
		return hierarchicalReduce(gradients, regionOf)
	default:
		return nil, errkind.New(errkind.Validation, "allreduce: unknown algorithm")
	}
}

// DefaultRegionFunc is the decided Open Question answer: the first byte of
// the 32-byte PeerId, following gradient.rs's peer.to_bytes()[0].
func DefaultRegionFunc(p ids.PeerId) byte {
	return p.Bytes()[0]
}

// ringReduce walks each peer backward around the PeerId-sorted ring,
// accumulating every other contributor's gradient, then divides by N.
// Deterministic and identical across all peers since every peer sums the
// full set regardless of "position".
func ringReduce(gradients map[ids.PeerId][]float32) ([]float32, error) {
	peers := sortedPeers(gradients)
	n := len(peers)
	width := len(gradients[peers[0]])

	acc := make([]float32, width)
	for _, p := range peers {
		g := gradients[p]
		for i, v := range g {
			acc[i] += v
		}
	}
	scale := float32(1.0 / float64(n))
	for i := range acc {
		acc[i] *= scale
	}
	return acc, nil
}

// treeReduce pairwise-averages up a binary tree, weighting each side by
// the number of contributors it already covers; an odd survivor at a
// level passes through unchanged, so the root holds the exact mean for
// any N.
func treeReduce(gradients map[ids.PeerId][]float32) ([]float32, error) {
	peers := sortedPeers(gradients)
	level := make([][]float32, len(peers))
	counts := make([]float32, len(peers))
	for i, p := range peers {
		level[i] = append([]float32(nil), gradients[p]...)
		counts[i] = 1
	}

	for len(level) > 1 {
		var next [][]float32
		var nextCounts []float32
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				merged := make([]float32, len(level[i]))
				total := counts[i] + counts[i+1]
				for j := range merged {
					merged[j] = (level[i][j]*counts[i] + level[i+1][j]*counts[i+1]) / total
				}
				next = append(next, merged)
				nextCounts = append(nextCounts, total)
			} else {
				next = append(next, level[i])
				nextCounts = append(nextCounts, counts[i])
			}
		}
		level = next
		counts = nextCounts
	}
	return level[0], nil
}

// butterflyReduce runs ceil(log2 N) stages of pairwise averaging against
// XOR-distance partners, each side weighted by the number of contributors
// its state already covers; a partner index outside the peer set is
// skipped. Every peer's state is computed at every stage and the function
// returns peer 0's, which covers every contributor for any N (for N a
// power of two every peer ends on the same value).
func butterflyReduce(gradients map[ids.PeerId][]float32) ([]float32, error) {
	peers := sortedPeers(gradients)
	n := len(peers)
	width := len(gradients[peers[0]])

	states := make([][]float32, n)
	counts := make([]float32, n)
	for i, p := range peers {
		states[i] = append([]float32(nil), gradients[p]...)
		counts[i] = 1
	}

	stages := int(math.Ceil(math.Log2(float64(n))))
	for s := 0; s < stages; s++ {
		distance := 1 << uint(s)
		next := make([][]float32, n)
		for i := range states {
			next[i] = append([]float32(nil), states[i]...)
		}
		nextCounts := append([]float32(nil), counts...)
		for i := 0; i < n; i++ {
			partner := i ^ distance
			if partner >= n {
				continue
			}
			total := counts[i] + counts[partner]
			for j := 0; j < width; j++ {
				next[i][j] = (states[i][j]*counts[i] + states[partner][j]*counts[partner]) / total
			}
			nextCounts[i] = total
		}
		states = next
		counts = nextCounts
	}
	return states[0], nil
}

// hierarchicalReduce partitions peers into regions via regionOf, averages
// within each region, then averages the regional means weighted by region
// size, which equals the mean over all contributors.
func hierarchicalReduce(gradients map[ids.PeerId][]float32, regionOf func(ids.PeerId) byte) ([]float32, error) {
	peers := sortedPeers(gradients)
	width := len(gradients[peers[0]])

	regions := make(map[byte][]ids.PeerId)
	for _, p := range peers {
		r := regionOf(p)
		regions[r] = append(regions[r], p)
	}

	regionKeys := make([]byte, 0, len(regions))
	for r := range regions {
		regionKeys = append(regionKeys, r)
	}
	sort.Slice(regionKeys, func(i, j int) bool { return regionKeys[i] < regionKeys[j] })

	regionalMeans := make([][]float32, 0, len(regionKeys))
	regionSizes := make([]float32, 0, len(regionKeys))
	for _, r := range regionKeys {
		members := regions[r]
		sum := make([]float32, width)
		for _, p := range members {
			for i, v := range gradients[p] {
				sum[i] += v
			}
		}
		for i := range sum {
			sum[i] /= float32(len(members))
		}
		regionalMeans = append(regionalMeans, sum)
		regionSizes = append(regionSizes, float32(len(members)))
	}

	global := make([]float32, width)
	for r, mean := range regionalMeans {
		for i, v := range mean {
			global[i] += v * regionSizes[r]
		}
	}
	for i := range global {
		global[i] /= float32(len(peers))
	}
	return global, nil
}
