package finality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ruvnet/daa-sub007/dag"
	"github.com/ruvnet/daa-sub007/ids"
	"github.com/ruvnet/daa-sub007/voting"
)

func vertexID(b byte) ids.VertexId {
	var v ids.VertexId
	v[0] = b
	return v
}

func TestObserveCommitFinalizesBlockHash(t *testing.T) {
	s := dag.New()
	now := time.Now()
	v := &dag.Vertex{ID: vertexID(1), Height: 0, Timestamp: now}
	require.NoError(t, s.AddVertex(v, now))

	o := New(s, 10, 0.67)
	require.False(t, o.IsFinalized(v.ID))

	o.ObserveCommit(&voting.Certificate{BlockHash: v.ID})
	require.True(t, o.IsFinalized(v.ID))
}

func TestRecomputeConfirmedUsesWeightThreshold(t *testing.T) {
	s := dag.New()
	now := time.Now()
	genesis := &dag.Vertex{ID: vertexID(1), Height: 0, Timestamp: now}
	require.NoError(t, s.AddVertex(genesis, now))

	// 7 approvers => genesis cumulative weight = 8, total stake 10,
	// threshold 0.67*10=6.7 => confirmed.
	for i := byte(2); i < 9; i++ {
		child := &dag.Vertex{ID: vertexID(i), Height: 1, Timestamp: now, Parents: []ids.VertexId{genesis.ID}}
		require.NoError(t, s.AddVertex(child, now))
	}

	o := New(s, 10, 0.67)
	o.ObserveCommit(&voting.Certificate{BlockHash: vertexID(8)})

	require.True(t, o.IsConfirmed(genesis.ID))
}

func TestFinalityIsMonotone(t *testing.T) {
	s := dag.New()
	now := time.Now()
	v := &dag.Vertex{ID: vertexID(1), Height: 0, Timestamp: now}
	require.NoError(t, s.AddVertex(v, now))

	o := New(s, 10, 0.67)
	o.ObserveCommit(&voting.Certificate{BlockHash: v.ID})
	require.True(t, o.IsFinalized(v.ID))

	// A second, unrelated commit must never un-finalize v.
	other := &dag.Vertex{ID: vertexID(2), Height: 0, Timestamp: now}
	require.NoError(t, s.AddVertex(other, now))
	o.ObserveCommit(&voting.Certificate{BlockHash: other.ID})

	require.True(t, o.IsFinalized(v.ID))
	require.True(t, o.IsFinalized(other.ID))
}

func TestFinalizedSetReturnsSnapshot(t *testing.T) {
	s := dag.New()
	now := time.Now()
	v := &dag.Vertex{ID: vertexID(5), Height: 0, Timestamp: now}
	require.NoError(t, s.AddVertex(v, now))

	o := New(s, 1, 0.67)
	o.ObserveCommit(&voting.Certificate{BlockHash: v.ID})

	require.ElementsMatch(t, []ids.VertexId{v.ID}, o.FinalizedSet())
}
