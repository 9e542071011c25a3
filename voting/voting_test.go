package voting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ruvnet/daa-sub007/crypto"
	"github.com/ruvnet/daa-sub007/ids"
)

// fakeSigner accepts any signature equal to the public key itself,
// letting tests construct valid votes without standing up real PQ keys.
type fakeSigner struct{}

func (fakeSigner) Sign(sk crypto.PrivateKey, msg []byte) (crypto.Signature, error) {
	return crypto.Signature(sk), nil
}

func (fakeSigner) Verify(pk crypto.PublicKey, msg []byte, sig crypto.Signature) bool {
	return string(pk) == string(sig)
}

func peerWith(b byte) ids.PeerId {
	var p ids.PeerId
	p[0] = b
	return p
}

func vertexWith(b byte) ids.VertexId {
	var v ids.VertexId
	v[0] = b
	return v
}

func threeValidators() []Validator {
	return []Validator{
		{ID: peerWith(1), Stake: 1, PK: []byte{1}},
		{ID: peerWith(2), Stake: 1, PK: []byte{2}},
		{ID: peerWith(3), Stake: 1, PK: []byte{3}},
	}
}

func voteFor(m *Machine, voter ids.PeerId, phase Phase, block ids.VertexId, pk []byte) Vote {
	return Vote{
		Voter:     voter,
		Epoch:     m.epoch,
		Round:     m.round,
		Phase:     phase,
		BlockHash: block,
		Signature: crypto.Signature(pk),
	}
}

func TestLeaderIsDeterministicAcrossSortedValidators(t *testing.T) {
	m := NewMachine(nil, fakeSigner{}, threeValidators(), 1, Config{BaseTimeout: time.Second})
	l1, err := m.Leader()
	require.NoError(t, err)
	l2, err := m.Leader()
	require.NoError(t, err)
	require.Equal(t, l1, l2)
}

func TestProposeRejectsNonLeader(t *testing.T) {
	m := NewMachine(nil, fakeSigner{}, threeValidators(), 1, Config{BaseTimeout: time.Second})
	leader, _ := m.Leader()
	var notLeader ids.PeerId
	for _, v := range threeValidators() {
		if v.ID != leader {
			notLeader = v.ID
			break
		}
	}
	require.Error(t, m.Propose(notLeader))
}

func TestProposeAdvancesToPrevote(t *testing.T) {
	m := NewMachine(nil, fakeSigner{}, threeValidators(), 1, Config{BaseTimeout: time.Second})
	leader, err := m.Leader()
	require.NoError(t, err)
	require.NoError(t, m.Propose(leader))
	require.Equal(t, Prevote, m.Phase())
}

func TestQuorumAdvancesThroughAllPhasesToCommit(t *testing.T) {
	validators := threeValidators()
	m := NewMachine(nil, fakeSigner{}, validators, 1, Config{BaseTimeout: time.Second})
	leader, _ := m.Leader()
	require.NoError(t, m.Propose(leader))

	block := vertexWith(9)
	for _, v := range validators {
		_, err := m.RecordVote(voteFor(m, v.ID, Prevote, block, v.PK))
		require.NoError(t, err)
	}
	require.Equal(t, Precommit, m.Phase())

	for _, v := range validators {
		_, err := m.RecordVote(voteFor(m, v.ID, Precommit, block, v.PK))
		require.NoError(t, err)
	}
	require.Equal(t, Commit, m.Phase())

	var cert *Certificate
	for i, v := range validators {
		c, err := m.RecordVote(voteFor(m, v.ID, Commit, block, v.PK))
		require.NoError(t, err)
		if i == len(validators)-1 {
			cert = c
		}
	}
	require.NotNil(t, cert)
	require.Equal(t, block, cert.BlockHash)
	require.Equal(t, uint64(1), m.Round())
}

func TestRecordVoteDetectsEquivocation(t *testing.T) {
	validators := threeValidators()
	m := NewMachine(nil, fakeSigner{}, validators, 1, Config{BaseTimeout: time.Second})
	leader, _ := m.Leader()
	require.NoError(t, m.Propose(leader))

	voter := validators[0]
	_, err := m.RecordVote(voteFor(m, voter.ID, Prevote, vertexWith(1), voter.PK))
	require.NoError(t, err)

	_, err = m.RecordVote(voteFor(m, voter.ID, Prevote, vertexWith(2), voter.PK))
	require.Error(t, err)
}

func TestVotedBitmapTracksVotersPerPhase(t *testing.T) {
	validators := threeValidators()
	m := NewMachine(nil, fakeSigner{}, validators, 1, Config{BaseTimeout: time.Second})
	leader, _ := m.Leader()
	require.NoError(t, m.Propose(leader))

	empty := m.VotedBitmap(Prevote)
	require.Equal(t, uint(0), empty.Count())

	block := vertexWith(5)
	_, err := m.RecordVote(voteFor(m, validators[0].ID, Prevote, block, validators[0].PK))
	require.NoError(t, err)

	bm := m.VotedBitmap(Prevote)
	require.Equal(t, uint(1), bm.Count())
	require.True(t, bm.Test(0))
	require.False(t, bm.Test(1))

	bm.Set(1)
	require.False(t, m.VotedBitmap(Prevote).Test(1), "returned bitmap must be a snapshot, not a live view")
}

func TestRecordVoteRejectsBadSignature(t *testing.T) {
	validators := threeValidators()
	m := NewMachine(nil, fakeSigner{}, validators, 1, Config{BaseTimeout: time.Second})
	leader, _ := m.Leader()
	require.NoError(t, m.Propose(leader))

	bad := voteFor(m, validators[0].ID, Prevote, vertexWith(1), []byte{99})
	_, err := m.RecordVote(bad)
	require.Error(t, err)
}

func TestCheckTimeoutAdvancesRoundAndDoublesTimeout(t *testing.T) {
	m := NewMachine(nil, fakeSigner{}, threeValidators(), 1, Config{BaseTimeout: 10 * time.Millisecond, MaxTimeout: time.Second})
	past := time.Now().Add(20 * time.Millisecond)
	require.True(t, m.CheckTimeout(past))
	require.Equal(t, uint64(1), m.Round())
	require.Equal(t, Propose, m.Phase())
	require.Equal(t, 20*time.Millisecond, m.state.timeout)
}
