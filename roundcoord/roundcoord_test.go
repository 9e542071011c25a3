package roundcoord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ruvnet/daa-sub007/ids"
	"github.com/ruvnet/daa-sub007/peer"
	"github.com/ruvnet/daa-sub007/training"
)

func workerID(b byte) ids.PeerId {
	var p ids.PeerId
	p[0] = b
	return p
}

func TestCoordinateRoundCollectsAllExpected(t *testing.T) {
	c := NewCoordinator(nil, nil, Config{MinPeersForAggregation: 1, Deadline: time.Second})
	workers := []ids.PeerId{workerID(1), workerID(2)}

	batches := make(chan training.GradientBatch, 2)
	batches <- training.GradientBatch{WorkerID: workers[0]}
	batches <- training.GradientBatch{WorkerID: workers[1]}

	result, err := c.CoordinateRound(workers, batches)
	require.NoError(t, err)
	require.Len(t, result.Batches, 2)
	require.Empty(t, result.Missed)
}

func TestCoordinateRoundDeadlineWithMinPeersSucceeds(t *testing.T) {
	mgr := peer.NewManager(nil)
	mgr.AddPeer(peer.Info{ID: workerID(2)})
	c := NewCoordinator(nil, mgr, Config{MinPeersForAggregation: 1, Deadline: 20 * time.Millisecond})
	workers := []ids.PeerId{workerID(1), workerID(2)}

	batches := make(chan training.GradientBatch, 1)
	batches <- training.GradientBatch{WorkerID: workers[0]}

	result, err := c.CoordinateRound(workers, batches)
	require.NoError(t, err)
	require.Len(t, result.Batches, 1)
	require.Equal(t, []ids.PeerId{workers[1]}, result.Missed)

	info, ok := mgr.Get(workers[1])
	require.True(t, ok)
	require.Less(t, info.Reputation, float64(peer.ReputationDecayTarget)+0.5)
}

func TestCoordinateRoundAbandonsBelowMinPeers(t *testing.T) {
	c := NewCoordinator(nil, nil, Config{MinPeersForAggregation: 2, Deadline: 20 * time.Millisecond})
	workers := []ids.PeerId{workerID(1), workerID(2), workerID(3)}

	batches := make(chan training.GradientBatch, 1)
	batches <- training.GradientBatch{WorkerID: workers[0]}

	_, err := c.CoordinateRound(workers, batches)
	require.Error(t, err)
}
