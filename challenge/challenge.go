// Package challenge implements X1: the challenge manager, a supplemented
// feature grounded on original_source/src/security/challenges.rs's
// ChallengeManager. The Rust source's tagged-enum ChallengeType/
// ChallengeProof pairs are flattened into one discriminated Params struct,
// the same closed-union idiom this module's ids.NodeAddress uses for its
// Socket/Domain/Shadow/Onion variants.
package challenge

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/ruvnet/daa-sub007/config"
	"github.com/ruvnet/daa-sub007/crypto"
	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/ids"
	"github.com/ruvnet/daa-sub007/peer"
)

// Kind discriminates the challenge/proof union.
type Kind uint8

const (
	GradientProof Kind = iota
	ModelStateProof
	AggregationProof
	ComputationalPuzzle
	DataPossessionProof
)

func (k Kind) String() string {
	switch k {
	case GradientProof:
		return "gradient_proof"
	case ModelStateProof:
		return "model_state_proof"
	case AggregationProof:
		return "aggregation_proof"
	case ComputationalPuzzle:
		return "computational_puzzle"
	case DataPossessionProof:
		return "data_possession_proof"
	default:
		return "unknown"
	}
}

// Params is the challenge's type-specific payload; only the fields for
// Kind are meaningful.
type Params struct {
	SampleIndices      []int
	ExpectedHash       []byte
	CheckpointVersion  uint64
	LayerIndices       []int
	Round              uint64
	ContributionHash   []byte
	Difficulty         uint32
	Seed               []byte
	DataIndices        []int
	MerkleRoot         []byte
}

// Challenge is one issued validation challenge, per §4.13.
type Challenge struct {
	ID       uint64
	Kind     Kind
	Target   ids.PeerId
	Params   Params
	IssuedAt time.Time
	Deadline time.Time
	Reward   uint64
	Penalty  uint64
}

// Proof is a response's type-specific payload; only the fields matching
// the original challenge's Kind are meaningful.
type Proof struct {
	Gradients         []float64
	ComputationTrace  []byte
	LayerHashes       [][]byte
	MerkleProofs      [][]byte
	Contribution      []byte
	PartialSignatures [][]byte
	Nonce             uint64
	Hash              []byte
	DataHashes        [][]byte
	MerklePaths       [][]byte
}

// Response is a participant's answer to a Challenge.
type Response struct {
	ChallengeID uint64
	Proof       Proof
	Timestamp   time.Time
	Signature   crypto.Signature
}

// Result records the outcome of verifying a Response.
type Result struct {
	ChallengeID  uint64
	Passed       bool
	ResponseTime time.Duration
	Details      string
}

// Config tunes challenge issuance.
type Config struct {
	DeadlineWindow time.Duration
	Reward         uint64
	Penalty        uint64
	PuzzleBits     uint32
}

// DefaultConfig matches the Rust source's 5-minute deadline, reward 10.
func DefaultConfig() Config {
	return Config{DeadlineWindow: 5 * time.Minute, Reward: 10, Penalty: 5, PuzzleBits: 20}
}

// Manager issues and verifies challenges, adjusting peer reputation on
// pass/fail/timeout per §4.13.
type Manager struct {
	mu      sync.Mutex
	ctx     *config.CoreContext
	signer  crypto.Signer
	peers   *peer.Manager
	cfg     Config
	active  map[uint64]*Challenge
	history map[ids.PeerId][]Result
	nextID  uint64
	rng     *rand.Rand
}

// NewManager constructs a Manager. rng may be nil to use a source seeded
// from the current time; tests inject a seeded one for determinism.
func NewManager(ctx *config.CoreContext, signer crypto.Signer, peers *peer.Manager, cfg Config, rng *rand.Rand) *Manager {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Manager{
		ctx:     ctx,
		signer:  signer,
		peers:   peers,
		cfg:     cfg,
		active:  make(map[uint64]*Challenge),
		history: make(map[ids.PeerId][]Result),
		rng:     rng,
	}
}

func (m *Manager) now() time.Time {
	if m.ctx == nil || m.ctx.Clock == nil {
		return time.Now()
	}
	return m.ctx.Clock.Now()
}

// IssueChallenge issues a uniformly random challenge kind to target.
func (m *Manager) IssueChallenge(target ids.PeerId) *Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()

	kind := Kind(m.rng.Intn(5))
	now := m.now()
	c := &Challenge{
		ID:       m.nextID + 1,
		Kind:     kind,
		Target:   target,
		Params:   m.randomParams(kind),
		IssuedAt: now,
		Deadline: now.Add(m.cfg.DeadlineWindow),
		Reward:   m.cfg.Reward,
		Penalty:  m.cfg.Penalty,
	}
	m.nextID = c.ID
	m.active[c.ID] = c
	return c
}

func (m *Manager) randomParams(kind Kind) Params {
	randBytes := func(n int) []byte {
		b := make([]byte, n)
		_, _ = m.rng.Read(b)
		return b
	}
	switch kind {
	case GradientProof:
		return Params{SampleIndices: []int{0, 1, 2}, ExpectedHash: randBytes(32)}
	case ModelStateProof:
		return Params{CheckpointVersion: uint64(m.rng.Intn(10) + 1), LayerIndices: []int{0, 1, 2}}
	case AggregationProof:
		return Params{Round: uint64(m.rng.Intn(100) + 1), ContributionHash: randBytes(32)}
	case ComputationalPuzzle:
		return Params{Difficulty: m.cfg.PuzzleBits, Seed: randBytes(32)}
	default:
		return Params{DataIndices: []int{0, 1, 2}, MerkleRoot: randBytes(32)}
	}
}

// VerifyResponse verifies a participant's Response against its matching
// active Challenge, applying reward/penalty to the target's reputation on
// pass/fail per §4.13, then retires the challenge.
func (m *Manager) VerifyResponse(resp Response, targetPK crypto.PublicKey) (Result, error) {
	m.mu.Lock()
	c, ok := m.active[resp.ChallengeID]
	m.mu.Unlock()
	if !ok {
		return Result{}, errkind.New(errkind.Validation, "challenge: unknown challenge id")
	}

	result := m.verify(c, resp, targetPK)

	m.mu.Lock()
	m.history[c.Target] = append(m.history[c.Target], result)
	delete(m.active, c.ID)
	m.mu.Unlock()

	if m.peers != nil {
		if result.Passed {
			_ = m.peers.RewardChallenge(c.Target, float64(c.Reward)/100)
		} else {
			_ = m.peers.PenalizeChallenge(c.Target, float64(c.Penalty)/100)
		}
	}
	return result, nil
}

func (m *Manager) verify(c *Challenge, resp Response, targetPK crypto.PublicKey) Result {
	if resp.Timestamp.After(c.Deadline) {
		return Result{ChallengeID: c.ID, Passed: false, Details: "response after deadline"}
	}

	if m.signer != nil {
		if !m.signer.Verify(targetPK, proofSigningBytes(resp.Proof), resp.Signature) {
			return Result{ChallengeID: c.ID, Passed: false, ResponseTime: resp.Timestamp.Sub(c.IssuedAt), Details: "invalid signature"}
		}
	}

	passed := m.verifyProof(c, resp.Proof)
	details := "invalid proof"
	if passed {
		details = "valid proof"
	}
	return Result{ChallengeID: c.ID, Passed: passed, ResponseTime: resp.Timestamp.Sub(c.IssuedAt), Details: details}
}

func proofSigningBytes(p Proof) []byte {
	buf := append([]byte(nil), p.ComputationTrace...)
	buf = append(buf, p.Hash...)
	return buf
}

// verifyProof dispatches verification by challenge kind, per §4.13
// "Verification is proof-specific".
func (m *Manager) verifyProof(c *Challenge, p Proof) bool {
	switch c.Kind {
	case ComputationalPuzzle:
		return verifyPuzzle(c.Params.Seed, c.Params.Difficulty, p.Nonce, p.Hash)
	case GradientProof:
		if len(p.Gradients) != len(c.Params.SampleIndices) {
			return false
		}
		var data []byte
		for _, g := range p.Gradients {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(g))
			data = append(data, b[:]...)
		}
		data = append(data, p.ComputationTrace...)
		hash := crypto.Hash(data)
		return crypto.ConstantTimeEqual(hash[:], c.Params.ExpectedHash)
	default:
		// Aggregation/model-state/data-possession proofs delegate to
		// collaborator-supplied verifiers (merkle paths, partial
		// signature checks) out of this package's scope; any proof,
		// empty or not, is accepted the way the Rust source's
		// catch-all arm (`_ => Ok(true)`) does.
		return true
	}
}

// PuzzleSolution computes a candidate solution to the computational
// puzzle given by seed and difficulty, starting from nonce 0, bounded by
// maxAttempts, for test and reference-client use.
func PuzzleSolution(seed []byte, difficulty uint32, maxAttempts uint64) (nonce uint64, hash []byte, found bool) {
	for n := uint64(0); n < maxAttempts; n++ {
		h := puzzleHash(seed, n)
		if leadingZeroBits(h[:]) >= difficulty {
			return n, h[:], true
		}
	}
	return 0, nil, false
}

func puzzleHash(seed []byte, nonce uint64) [32]byte {
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], nonce)
	return crypto.Hash(seed, nb[:])
}

func verifyPuzzle(seed []byte, difficulty uint32, nonce uint64, hash []byte) bool {
	computed := puzzleHash(seed, nonce)
	return leadingZeroBits(computed[:]) >= difficulty && crypto.ConstantTimeEqual(computed[:], hash)
}

// leadingZeroBits counts the number of leading zero bits in b, the exact
// metric spec.md §4.13 names ("hash(seed || nonce) has >= difficulty
// leading zero bits"), refined from the Rust source's byte-granular
// leading_zeros >= difficulty/8 check.
func leadingZeroBits(b []byte) uint32 {
	var count uint32
	for _, by := range b {
		if by == 0 {
			count += 8
			continue
		}
		for bit := 7; bit >= 0; bit-- {
			if by&(1<<uint(bit)) != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// SuccessRate reports a target's pass rate across its challenge history,
// defaulting to 1.0 for a participant with no recorded challenges.
func (m *Manager) SuccessRate(target ids.PeerId) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.history[target]
	if len(history) == 0 {
		return 1.0
	}
	var passed int
	for _, r := range history {
		if r.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(history))
}
