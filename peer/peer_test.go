package peer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruvnet/daa-sub007/ids"
)

func testPeerID(b byte) ids.PeerId {
	var p ids.PeerId
	p[0] = b
	return p
}

func TestAddGetRemovePeer(t *testing.T) {
	m := NewManager(nil)
	id := testPeerID(1)
	m.AddPeer(Info{ID: id, AgentID: "agent-1"})

	info, ok := m.Get(id)
	require.True(t, ok)
	require.Equal(t, "agent-1", info.AgentID)
	require.Equal(t, ReputationDecayTarget, info.Reputation)
	require.Equal(t, 1, m.Len())

	m.RemovePeer(id)
	_, ok = m.Get(id)
	require.False(t, ok)
	require.Equal(t, 0, m.Len())
}

func TestPenalizeTimeoutDecaysTowardTarget(t *testing.T) {
	m := NewManager(nil)
	id := testPeerID(1)
	m.AddPeer(Info{ID: id, Reputation: 0.9})

	require.NoError(t, m.PenalizeTimeout(id))
	info, _ := m.Get(id)
	require.Less(t, info.Reputation, 0.9)
	require.Greater(t, info.Reputation, ReputationDecayTarget)
}

func TestRewardAndPenalizeChallengeClamped(t *testing.T) {
	m := NewManager(nil)
	id := testPeerID(1)
	m.AddPeer(Info{ID: id, Reputation: 0.95})

	require.NoError(t, m.RewardChallenge(id, 0.5))
	info, _ := m.Get(id)
	require.Equal(t, 1.0, info.Reputation)

	require.NoError(t, m.PenalizeChallenge(id, 2.0))
	info, _ = m.Get(id)
	require.Equal(t, 0.0, info.Reputation)
}

func TestAdjustUnknownPeerErrors(t *testing.T) {
	m := NewManager(nil)
	require.Error(t, m.PenalizeTimeout(testPeerID(9)))
	require.Error(t, m.RewardChallenge(testPeerID(9), 0.1))
	require.Error(t, m.Touch(testPeerID(9)))
}

func TestSortedByReputation(t *testing.T) {
	m := NewManager(nil)
	m.AddPeer(Info{ID: testPeerID(1), Reputation: 0.3})
	m.AddPeer(Info{ID: testPeerID(2), Reputation: 0.9})
	m.AddPeer(Info{ID: testPeerID(3), Reputation: 0.6})

	sorted := m.SortedByReputation()
	require.Len(t, sorted, 3)
	require.Equal(t, 0.9, sorted[0].Reputation)
	require.Equal(t, 0.6, sorted[1].Reputation)
	require.Equal(t, 0.3, sorted[2].Reputation)
}

func TestHasCapability(t *testing.T) {
	info := Info{Capabilities: map[string]struct{}{"gpu": {}}}
	require.True(t, info.HasCapability("gpu"))
	require.False(t, info.HasCapability("tpu"))
}
