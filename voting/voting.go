// Package voting implements D3: the per-(epoch,round) voting state
// machine — Propose -> Prevote -> Precommit -> Commit — with stake-weighted
// quorum, leader election and equivocation detection. Grounded on
// luxfi-consensus/consensus/wave/simple_threshold.go's BinaryThreshold
// poll-counting idiom, generalized from a single confidence counter to the
// four-phase stake-quorum state machine spec.md §4.11 describes.
package voting

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/ruvnet/daa-sub007/config"
	"github.com/ruvnet/daa-sub007/crypto"
	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/ids"
)

// Phase is the per-round state: Propose -> Prevote -> Precommit -> Commit.
type Phase uint8

const (
	Propose Phase = iota
	Prevote
	Precommit
	Commit
)

func (p Phase) String() string {
	switch p {
	case Propose:
		return "propose"
	case Prevote:
		return "prevote"
	case Precommit:
		return "precommit"
	case Commit:
		return "commit"
	default:
		return "invalid"
	}
}

// Validator is one entry in the validator set used for leader election and
// stake-weighted quorum.
type Validator struct {
	ID    ids.PeerId
	Stake uint64
	PK    crypto.PublicKey
}

// Vote is a signed assertion about one (epoch, round, phase).
type Vote struct {
	Voter     ids.PeerId
	Epoch     uint64
	Round     uint64
	Phase     Phase
	BlockHash ids.VertexId
	Signature crypto.Signature
}

// signedFields returns the exact byte tuple a Vote's signature covers,
// per §4.11: "(epoch, round, phase, block_hash)".
func signedFields(epoch, round uint64, phase Phase, blockHash ids.VertexId) []byte {
	buf := make([]byte, 0, 8+8+1+32)
	var eb, rb [8]byte
	binary.BigEndian.PutUint64(eb[:], epoch)
	binary.BigEndian.PutUint64(rb[:], round)
	buf = append(buf, eb[:]...)
	buf = append(buf, rb[:]...)
	buf = append(buf, byte(phase))
	buf = append(buf, blockHash[:]...)
	return buf
}

// Certificate is the output of a successful Commit, proof that >= 2/3
// stake committed to BlockHash at (Epoch, Round).
type Certificate struct {
	Epoch     uint64
	Round     uint64
	BlockHash ids.VertexId
	Votes     []Vote
}

// Config tunes liveness timeouts; the quorum threshold is fixed at 2/3 of
// total stake.
type Config struct {
	BaseTimeout time.Duration
	MaxTimeout  time.Duration
}

// roundState tracks one (epoch, round)'s accumulated votes per phase. voted
// holds one quorum bitmap per phase, bit i set once validators[i] has cast
// a vote in that phase — a compact alternative to walking the vote maps
// just to answer "who has voted so far".
type roundState struct {
	phase      Phase
	deadline   time.Time
	timeout    time.Duration
	prevotes   map[ids.VertexId]map[ids.PeerId]Vote
	precommits map[ids.VertexId]map[ids.PeerId]Vote
	commits    map[ids.VertexId]map[ids.PeerId]Vote
	voterPhase map[ids.PeerId]map[Phase]ids.VertexId // equivocation tracking
	voted      map[Phase]*bitset.BitSet
}

func newRoundState(timeout time.Duration, now time.Time, validatorCount int) *roundState {
	return &roundState{
		phase:      Propose,
		deadline:   now.Add(timeout),
		timeout:    timeout,
		prevotes:   make(map[ids.VertexId]map[ids.PeerId]Vote),
		precommits: make(map[ids.VertexId]map[ids.PeerId]Vote),
		commits:    make(map[ids.VertexId]map[ids.PeerId]Vote),
		voterPhase: make(map[ids.PeerId]map[Phase]ids.VertexId),
		voted: map[Phase]*bitset.BitSet{
			Prevote:   bitset.New(uint(validatorCount)),
			Precommit: bitset.New(uint(validatorCount)),
			Commit:    bitset.New(uint(validatorCount)),
		},
	}
}

// Machine drives one epoch's sequence of rounds.
type Machine struct {
	ctx        *config.CoreContext
	signer     crypto.Signer
	validators []Validator
	cfg        Config
	epoch      uint64
	round      uint64
	state      *roundState
}

// NewMachine constructs a voting Machine for one epoch. The validator set
// is sorted by PeerId, per §4.11's leader-election rule.
func NewMachine(ctx *config.CoreContext, signer crypto.Signer, validators []Validator, epoch uint64, cfg Config) *Machine {
	sorted := append([]Validator(nil), validators...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Less(sorted[j].ID) })
	m := &Machine{ctx: ctx, signer: signer, validators: sorted, cfg: cfg, epoch: epoch}
	m.state = newRoundState(cfg.BaseTimeout, now(ctx), len(sorted))
	return m
}

func now(ctx *config.CoreContext) time.Time {
	if ctx == nil || ctx.Clock == nil {
		return time.Now()
	}
	return ctx.Clock.Now()
}

// Phase reports the current round's phase.
func (m *Machine) Phase() Phase { return m.state.phase }

// Round reports the current round number.
func (m *Machine) Round() uint64 { return m.round }

func (m *Machine) totalStake() uint64 {
	var total uint64
	for _, v := range m.validators {
		total += v.Stake
	}
	return total
}

// Leader returns the expected proposer for the current round: hash(epoch
// || round) mod |active_validators|, indexed into the PeerId-sorted set.
func (m *Machine) Leader() (ids.PeerId, error) {
	if len(m.validators) == 0 {
		return ids.PeerId{}, errkind.New(errkind.Validation, "voting: empty validator set")
	}
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], m.epoch)
	binary.BigEndian.PutUint64(buf[8:16], m.round)
	h := crypto.Hash(buf[:])
	idx := binary.BigEndian.Uint64(h[:8]) % uint64(len(m.validators))
	return m.validators[idx].ID, nil
}

func (m *Machine) findValidator(id ids.PeerId) (Validator, bool) {
	for _, v := range m.validators {
		if v.ID == id {
			return v, true
		}
	}
	return Validator{}, false
}

func (m *Machine) findValidatorIndex(id ids.PeerId) (int, bool) {
	for i, v := range m.validators {
		if v.ID == id {
			return i, true
		}
	}
	return 0, false
}

// VotedBitmap reports which validators (indexed into the PeerId-sorted
// validator set) have cast a vote for the current round in phase. The
// returned bitmap is a snapshot, safe to mutate without affecting the
// Machine.
func (m *Machine) VotedBitmap(phase Phase) *bitset.BitSet {
	b, ok := m.state.voted[phase]
	if !ok {
		return bitset.New(uint(len(m.validators)))
	}
	return b.Clone()
}

// RecordVote validates and applies a Prevote, Precommit or Commit vote
// against the current round, detecting equivocation (duplicate votes from
// one voter within the same phase for different block hashes) and
// advancing the phase once 2/3 stake agrees, per §4.11.
func (m *Machine) RecordVote(v Vote) (*Certificate, error) {
	if v.Epoch != m.epoch || v.Round != m.round {
		return nil, errkind.New(errkind.Protocol, "voting: vote for wrong epoch/round")
	}
	if v.Phase != m.state.phase {
		return nil, errkind.New(errkind.Protocol, "voting: vote for wrong phase")
	}
	validator, ok := m.findValidator(v.Voter)
	if !ok {
		return nil, errkind.New(errkind.Validation, "voting: unknown voter")
	}
	if !m.signer.Verify(validator.PK, signedFields(v.Epoch, v.Round, v.Phase, v.BlockHash), v.Signature) {
		return nil, errkind.New(errkind.Authentication, "voting: bad vote signature")
	}

	if seenByPhase, ok := m.state.voterPhase[v.Voter]; ok {
		if prior, voted := seenByPhase[v.Phase]; voted && prior != v.BlockHash {
			return nil, errkind.New(errkind.Byzantine, "voting: equivocation detected")
		}
	} else {
		m.state.voterPhase[v.Voter] = make(map[Phase]ids.VertexId)
	}
	m.state.voterPhase[v.Voter][v.Phase] = v.BlockHash

	var bucket map[ids.VertexId]map[ids.PeerId]Vote
	switch v.Phase {
	case Prevote:
		bucket = m.state.prevotes
	case Precommit:
		bucket = m.state.precommits
	case Commit:
		bucket = m.state.commits
	default:
		return nil, errkind.New(errkind.Protocol, "voting: votes are not accepted in Propose phase")
	}
	if bucket[v.BlockHash] == nil {
		bucket[v.BlockHash] = make(map[ids.PeerId]Vote)
	}
	bucket[v.BlockHash][v.Voter] = v
	if idx, ok := m.findValidatorIndex(v.Voter); ok {
		if voted, ok := m.state.voted[v.Phase]; ok {
			voted.Set(uint(idx))
		}
	}

	stakeFor := func(votes map[ids.PeerId]Vote) uint64 {
		var total uint64
		for voter := range votes {
			if val, ok := m.findValidator(voter); ok {
				total += val.Stake
			}
		}
		return total
	}

	threshold := (m.totalStake()*2 + 2) / 3 // ceil(2*total/3)
	if stakeFor(bucket[v.BlockHash]) < threshold {
		return nil, nil
	}

	switch v.Phase {
	case Prevote:
		m.state.phase = Precommit
	case Precommit:
		m.state.phase = Commit
	case Commit:
		cert := &Certificate{Epoch: m.epoch, Round: m.round, BlockHash: v.BlockHash}
		for _, vote := range bucket[v.BlockHash] {
			cert.Votes = append(cert.Votes, vote)
		}
		m.advanceRound()
		return cert, nil
	}
	return nil, nil
}

// Propose records a proposal from the expected leader, advancing
// Propose -> Prevote per §4.11.
func (m *Machine) Propose(proposer ids.PeerId) error {
	if m.state.phase != Propose {
		return errkind.New(errkind.Protocol, "voting: not in Propose phase")
	}
	leader, err := m.Leader()
	if err != nil {
		return err
	}
	if proposer != leader {
		return errkind.New(errkind.Protocol, "voting: proposal from non-leader")
	}
	m.state.phase = Prevote
	return nil
}

// CheckTimeout advances the round on a missed deadline, doubling the next
// round's timeout up to MaxTimeout, per §4.11's liveness clause.
func (m *Machine) CheckTimeout(at time.Time) bool {
	if at.Before(m.state.deadline) {
		return false
	}
	m.advanceRound()
	return true
}

func (m *Machine) advanceRound() {
	nextTimeout := m.state.timeout * 2
	if m.cfg.MaxTimeout > 0 && nextTimeout > m.cfg.MaxTimeout {
		nextTimeout = m.cfg.MaxTimeout
	}
	if nextTimeout <= 0 {
		nextTimeout = m.cfg.BaseTimeout
	}
	m.round++
	m.state = newRoundState(nextTimeout, now(m.ctx), len(m.validators))
}
