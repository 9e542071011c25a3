package allreduce

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ruvnet/daa-sub007/ids"
)

func peerWith(b byte) ids.PeerId {
	var p ids.PeerId
	p[0] = b
	return p
}

func fourPeerGradients() map[ids.PeerId][]float32 {
	return map[ids.PeerId][]float32{
		peerWith(1): {1, 2, 3},
		peerWith(2): {3, 4, 5},
		peerWith(3): {5, 6, 7},
		peerWith(4): {7, 8, 9},
	}
}

// expectedMean computes the per-dimension mean across contributors via
// gonum's stat package, the reference value every all-reduce algorithm
// must converge to.
func expectedMean(gradients map[ids.PeerId][]float32) []float32 {
	width := 0
	for _, g := range gradients {
		width = len(g)
		break
	}
	columns := make([][]float64, width)
	for i := range columns {
		columns[i] = make([]float64, 0, len(gradients))
	}
	for _, g := range gradients {
		for i, v := range g {
			columns[i] = append(columns[i], float64(v))
		}
	}
	out := make([]float32, width)
	for i, col := range columns {
		out[i] = float32(stat.Mean(col, nil))
	}
	return out
}

func requireCloseVectors(t *testing.T, want, got []float32, eps float64) {
	t.Helper()
	require.Len(t, got, len(want))
	w64 := make([]float64, len(want))
	g64 := make([]float64, len(got))
	for i := range want {
		w64[i] = float64(want[i])
		g64[i] = float64(got[i])
	}
	require.True(t, floats.EqualApprox(w64, g64, eps), "want %v, got %v within %v", want, got, eps)
}

func TestRingReduceEqualsMean(t *testing.T) {
	g := fourPeerGradients()
	out, err := Reduce(Ring, g, nil)
	require.NoError(t, err)
	requireCloseVectors(t, expectedMean(g), out, Epsilon)
}

func TestTreeReduceEqualsMean(t *testing.T) {
	g := fourPeerGradients()
	out, err := Reduce(Tree, g, nil)
	require.NoError(t, err)
	requireCloseVectors(t, expectedMean(g), out, Epsilon)
}

func TestButterflyReduceEqualsMean(t *testing.T) {
	g := fourPeerGradients()
	out, err := Reduce(Butterfly, g, nil)
	require.NoError(t, err)
	requireCloseVectors(t, expectedMean(g), out, Epsilon)
}

func TestHierarchicalReduceEqualsMeanSingleRegion(t *testing.T) {
	g := fourPeerGradients()
	// The four test peer ids have distinct first bytes, so the default
	// region function would give each its own region; force everyone into
	// one region to validate the two-level average degenerates correctly
	// when there is exactly one region.
	out, err := Reduce(Hierarchical, g, func(ids.PeerId) byte { return 0 })
	require.NoError(t, err)
	requireCloseVectors(t, expectedMean(g), out, Epsilon)
}

func TestHierarchicalReduceMultipleRegions(t *testing.T) {
	g := fourPeerGradients()
	out, err := Reduce(Hierarchical, g, func(p ids.PeerId) byte { return p.Bytes()[0] % 2 })
	require.NoError(t, err)
	requireCloseVectors(t, expectedMean(g), out, Epsilon)
}

func TestAllAlgorithmsAgree(t *testing.T) {
	g := fourPeerGradients()
	ring, err := Reduce(Ring, g, nil)
	require.NoError(t, err)
	tree, err := Reduce(Tree, g, nil)
	require.NoError(t, err)
	butterfly, err := Reduce(Butterfly, g, nil)
	require.NoError(t, err)
	hier, err := Reduce(Hierarchical, g, func(ids.PeerId) byte { return 0 })
	require.NoError(t, err)

	requireCloseVectors(t, ring, tree, Epsilon)
	requireCloseVectors(t, ring, butterfly, Epsilon)
	requireCloseVectors(t, ring, hier, Epsilon)
}

func TestReduceRejectsEmptyContributors(t *testing.T) {
	_, err := Reduce(Ring, map[ids.PeerId][]float32{}, nil)
	require.Error(t, err)
}

func TestReduceRejectsMismatchedLengths(t *testing.T) {
	g := map[ids.PeerId][]float32{
		peerWith(1): {1, 2, 3},
		peerWith(2): {1, 2},
	}
	_, err := Reduce(Ring, g, nil)
	require.Error(t, err)
}

func TestDefaultRegionFuncUsesFirstByte(t *testing.T) {
	p := peerWith(42)
	require.Equal(t, byte(42), DefaultRegionFunc(p))
}
