// Package peer implements N3: the peer manager tracking PeerInfo,
// connection state, reputation and capabilities. Grounded on the
// validators.Set/Manager shape in luxfi-consensus/validators/validators.go,
// generalized from stake-weighted validator sets to the spec's
// connectivity/reputation PeerInfo model (§3, §4.4).
package peer

import (
	"sort"
	"sync"

	"github.com/ruvnet/daa-sub007/config"
	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/ids"
)

const (
	// ReputationDecayTarget is the value reputation decays toward on
	// timeouts (§4.4).
	ReputationDecayTarget = 0.5
	// ReputationDecayRate controls how much of the gap to the decay
	// target is closed per timeout event.
	ReputationDecayRate = 0.1
)

// Info is one tracked peer's connectivity and reputation state.
type Info struct {
	ID           ids.PeerId
	Addr         ids.NodeAddress
	AgentID      string
	Capabilities map[string]struct{}
	LastSeenMs   uint64
	Reputation   float64
}

// HasCapability reports whether the peer advertises cap.
func (i Info) HasCapability(cap string) bool {
	_, ok := i.Capabilities[cap]
	return ok
}

// Manager tracks the live set of known peers. Mutations are serialized by a
// single writer lock; reads may proceed concurrently (§9's "multi-reader,
// single-writer" peer table).
type Manager struct {
	ctx   *config.CoreContext
	clock config.Clock

	mu    sync.RWMutex
	peers map[ids.PeerId]*Info
}

// NewManager constructs an empty peer manager.
func NewManager(ctx *config.CoreContext) *Manager {
	clock := config.Clock(config.SystemClock{})
	if ctx != nil && ctx.Clock != nil {
		clock = ctx.Clock
	}
	return &Manager{
		ctx:   ctx,
		clock: clock,
		peers: make(map[ids.PeerId]*Info),
	}
}

// AddPeer registers or replaces a peer's info. O(1) amortized.
func (m *Manager) AddPeer(info Info) {
	if info.Capabilities == nil {
		info.Capabilities = make(map[string]struct{})
	}
	if info.Reputation == 0 {
		info.Reputation = ReputationDecayTarget
	}
	cp := info
	m.mu.Lock()
	m.peers[info.ID] = &cp
	m.mu.Unlock()
}

// RemovePeer evicts a peer. O(1) amortized.
func (m *Manager) RemovePeer(id ids.PeerId) {
	m.mu.Lock()
	delete(m.peers, id)
	m.mu.Unlock()
}

// Get returns a copy of a peer's tracked info.
func (m *Manager) Get(id ids.PeerId) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.peers[id]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Len reports the number of tracked peers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// Connected returns every tracked peer id, in no particular order.
func (m *Manager) Connected() []ids.PeerId {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ids.PeerId, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	return out
}

// SortedByReputation returns all tracked peers, highest reputation first.
func (m *Manager) SortedByReputation() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.peers))
	for _, info := range m.peers {
		out = append(out, *info)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Reputation > out[j].Reputation })
	return out
}

// Touch records liveness: updates last_seen to now.
func (m *Manager) Touch(id ids.PeerId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.peers[id]
	if !ok {
		return errkind.New(errkind.Validation, "peer: unknown peer id")
	}
	info.LastSeenMs = uint64(m.clock.Now().UnixMilli())
	return nil
}

// PenalizeTimeout decays a peer's reputation toward ReputationDecayTarget,
// the response to a connection timeout (§4.4, §7 Authentication errors).
func (m *Manager) PenalizeTimeout(id ids.PeerId) error {
	return m.adjust(id, func(rep float64) float64 {
		return rep + (ReputationDecayTarget-rep)*ReputationDecayRate
	})
}

// RewardChallenge increases a peer's reputation after a successful
// challenge response (X1), clamped to [0, 1].
func (m *Manager) RewardChallenge(id ids.PeerId, amount float64) error {
	return m.adjust(id, func(rep float64) float64 {
		return clamp01(rep + amount)
	})
}

// PenalizeChallenge decreases a peer's reputation after a failed or timed
// out challenge (X1), clamped to [0, 1].
func (m *Manager) PenalizeChallenge(id ids.PeerId, amount float64) error {
	return m.adjust(id, func(rep float64) float64 {
		return clamp01(rep - amount)
	})
}

func (m *Manager) adjust(id ids.PeerId, fn func(float64) float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.peers[id]
	if !ok {
		return errkind.New(errkind.Validation, "peer: unknown peer id")
	}
	info.Reputation = fn(info.Reputation)
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
