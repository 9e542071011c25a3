package challenge

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ruvnet/daa-sub007/crypto"
	"github.com/ruvnet/daa-sub007/ids"
	"github.com/ruvnet/daa-sub007/peer"
)

type fakeSigner struct{}

func (fakeSigner) Sign(sk crypto.PrivateKey, msg []byte) (crypto.Signature, error) {
	return crypto.Signature(sk), nil
}

func (fakeSigner) Verify(pk crypto.PublicKey, msg []byte, sig crypto.Signature) bool {
	return string(pk) == string(sig)
}

func testTarget() ids.PeerId {
	var p ids.PeerId
	p[0] = 3
	return p
}

func TestIssueChallengeSetsDeadlineAndReward(t *testing.T) {
	m := NewManager(nil, fakeSigner{}, nil, DefaultConfig(), rand.New(rand.NewSource(1)))
	c := m.IssueChallenge(testTarget())

	require.Equal(t, testTarget(), c.Target)
	require.True(t, c.Deadline.After(c.IssuedAt))
	require.Equal(t, uint64(10), c.Reward)
}

func TestVerifyResponseRejectsUnknownChallenge(t *testing.T) {
	m := NewManager(nil, fakeSigner{}, nil, DefaultConfig(), rand.New(rand.NewSource(1)))
	_, err := m.VerifyResponse(Response{ChallengeID: 999}, []byte{1})
	require.Error(t, err)
}

func TestVerifyResponseRejectsAfterDeadline(t *testing.T) {
	mgr := peer.NewManager(nil)
	mgr.AddPeer(peer.Info{ID: testTarget()})
	m := NewManager(nil, fakeSigner{}, mgr, Config{DeadlineWindow: time.Millisecond, Reward: 10, Penalty: 5, PuzzleBits: 4}, rand.New(rand.NewSource(1)))
	c := m.IssueChallenge(testTarget())

	resp := Response{ChallengeID: c.ID, Timestamp: c.Deadline.Add(time.Second), Signature: []byte{1}}
	result, err := m.VerifyResponse(resp, []byte{1})
	require.NoError(t, err)
	require.False(t, result.Passed)
}

func TestComputationalPuzzleRoundTrip(t *testing.T) {
	mgr := peer.NewManager(nil)
	mgr.AddPeer(peer.Info{ID: testTarget()})
	cfg := Config{DeadlineWindow: time.Hour, Reward: 10, Penalty: 5, PuzzleBits: 8}
	m := NewManager(nil, fakeSigner{}, mgr, cfg, rand.New(rand.NewSource(2)))

	var c *Challenge
	for i := 0; i < 20; i++ {
		cand := m.IssueChallenge(testTarget())
		if cand.Kind == ComputationalPuzzle {
			c = cand
			break
		}
	}
	require.NotNil(t, c, "expected a ComputationalPuzzle among issued challenges")

	nonce, hash, found := PuzzleSolution(c.Params.Seed, c.Params.Difficulty, 200000)
	require.True(t, found)

	resp := Response{
		ChallengeID: c.ID,
		Proof:       Proof{Nonce: nonce, Hash: hash},
		Timestamp:   c.IssuedAt.Add(time.Second),
		Signature:   []byte{1},
	}
	result, err := m.VerifyResponse(resp, []byte{1})
	require.NoError(t, err)
	require.True(t, result.Passed)

	info, ok := mgr.Get(testTarget())
	require.True(t, ok)
	require.Greater(t, info.Reputation, peer.ReputationDecayTarget)
}

func TestComputationalPuzzleRejectsWrongNonce(t *testing.T) {
	mgr := peer.NewManager(nil)
	mgr.AddPeer(peer.Info{ID: testTarget()})
	cfg := Config{DeadlineWindow: time.Hour, Reward: 10, Penalty: 5, PuzzleBits: 32}
	m := NewManager(nil, fakeSigner{}, mgr, cfg, rand.New(rand.NewSource(2)))

	var c *Challenge
	for i := 0; i < 20; i++ {
		cand := m.IssueChallenge(testTarget())
		if cand.Kind == ComputationalPuzzle {
			c = cand
			break
		}
	}
	require.NotNil(t, c)

	resp := Response{
		ChallengeID: c.ID,
		Proof:       Proof{Nonce: 0, Hash: make([]byte, 32)},
		Timestamp:   c.IssuedAt.Add(time.Second),
		Signature:   []byte{1},
	}
	result, err := m.VerifyResponse(resp, []byte{1})
	require.NoError(t, err)
	require.False(t, result.Passed)

	info, ok := mgr.Get(testTarget())
	require.True(t, ok)
	require.Less(t, info.Reputation, peer.ReputationDecayTarget)
}

func TestSuccessRateDefaultsToOneWithNoHistory(t *testing.T) {
	m := NewManager(nil, fakeSigner{}, nil, DefaultConfig(), rand.New(rand.NewSource(1)))
	require.Equal(t, 1.0, m.SuccessRate(testTarget()))
}

func TestLeadingZeroBits(t *testing.T) {
	require.Equal(t, uint32(16), leadingZeroBits([]byte{0x00, 0x00, 0xFF}))
	require.Equal(t, uint32(0), leadingZeroBits([]byte{0xFF}))
	require.Equal(t, uint32(7), leadingZeroBits([]byte{0x01}))
}
