// Package nat implements N2: NAT type detection, ICE candidate gathering
// and TURN relay allocation. Grounded on
// original_source/daa-compute/src/p2p/nat.rs, adapted from its
// placeholder STUN/TURN calls into the full state machine spec.md §4.3
// describes.
package nat

import (
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/ruvnet/daa-sub007/config"
	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/ids"
)

// Type classifies the NAT a node sits behind.
type Type uint8

const (
	None Type = iota
	FullCone
	RestrictedCone
	PortRestrictedCone
	Symmetric
	Unknown
)

// SupportsDirect reports whether peers can reach this node without relay.
func (t Type) SupportsDirect() bool {
	switch t {
	case None, FullCone, RestrictedCone:
		return true
	default:
		return false
	}
}

// RequiresTURN reports whether only a relay can establish connectivity.
func (t Type) RequiresTURN() bool { return t == Symmetric }

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case FullCone:
		return "full_cone"
	case RestrictedCone:
		return "restricted_cone"
	case PortRestrictedCone:
		return "port_restricted_cone"
	case Symmetric:
		return "symmetric"
	default:
		return "unknown"
	}
}

// Phase is the per-endpoint traversal state machine: Unknown -> Detecting
// -> Known(type) -> Allocating(relay) -> Relayed.
type Phase uint8

const (
	PhaseUnknown Phase = iota
	PhaseDetecting
	PhaseKnown
	PhaseAllocating
	PhaseRelayed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnknown:
		return "unknown"
	case PhaseDetecting:
		return "detecting"
	case PhaseKnown:
		return "known"
	case PhaseAllocating:
		return "allocating"
	case PhaseRelayed:
		return "relayed"
	default:
		return "invalid"
	}
}

// StunConfig is the set of STUN servers queried during detection.
type StunConfig struct {
	Servers    []string
	Timeout    time.Duration
	RetryCount int
}

// DefaultStunConfig mirrors the teacher's stated defaults.
func DefaultStunConfig() StunConfig {
	return StunConfig{
		Servers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
			"stun:stun2.l.google.com:19302",
			"stun:global.stun.twilio.com:3478",
		},
		Timeout:    5 * time.Second,
		RetryCount: 3,
	}
}

// CredentialType names how a TURN server authenticates allocations.
type CredentialType uint8

const (
	CredentialPassword CredentialType = iota
	CredentialAPIKey
	CredentialOAuth
)

// TurnServer is one configured TURN relay endpoint.
type TurnServer struct {
	URLs           []string
	Username       string
	Credential     string
	CredentialType CredentialType
}

// TurnConfig is the set of TURN servers available for relay allocation.
type TurnConfig struct {
	Servers             []TurnServer
	AllocationLifetime  time.Duration
}

// Allocation is a granted TURN relay.
type Allocation struct {
	RelayAddr ids.NodeAddress
	Username  string
	Realm     string
	Lifetime  time.Duration
	CreatedAt time.Time
}

// CandidateType classifies an ICE candidate's origin.
type CandidateType uint8

const (
	CandidateHost CandidateType = iota
	CandidateServerReflexive
	CandidatePeerReflexive
	CandidateRelay
)

// Candidate is a reachable endpoint tuple per spec.md's glossary.
type Candidate struct {
	Type       CandidateType
	Address    ids.NodeAddress
	Priority   uint32
	Foundation string
}

// Priority implements spec.md §4.3's formula:
// (2^24 · type_pref) + (2^8 · local_pref) + (256 − component).
func Priority(typ CandidateType, localPref uint16, component uint8) uint32 {
	var typePref uint32
	switch typ {
	case CandidateHost:
		typePref = 126
	case CandidatePeerReflexive:
		typePref = 110
	case CandidateServerReflexive:
		typePref = 100
	case CandidateRelay:
		typePref = 0
	}
	return (1<<24)*typePref + (1<<8)*uint32(localPref) + (256 - uint32(component))
}

// StunQuerier abstracts the actual STUN binding exchange so Traversal's
// state machine can be exercised without a real network.
type StunQuerier interface {
	QueryBinding(server string, timeout time.Duration) (ids.NodeAddress, error)
}

// HostCandidateSource abstracts local interface enumeration.
type HostCandidateSource interface {
	HostAddresses() ([]ids.NodeAddress, error)
}

// Traversal runs NAT detection, ICE candidate gathering and TURN
// allocation for one local endpoint.
type Traversal struct {
	ctx   *config.CoreContext
	stun  StunConfig
	turn  *TurnConfig
	query StunQuerier
	hosts HostCandidateSource

	mu              sync.RWMutex
	phase           Phase
	natType         Type
	publicAddresses []ids.NodeAddress
	allocations     []Allocation
}

// NewTraversal constructs a Traversal. turn may be nil when no relay is
// configured, per spec.md's "TURN not configured" NoRelayAvailable path.
func NewTraversal(ctx *config.CoreContext, stun StunConfig, turn *TurnConfig, query StunQuerier, hosts HostCandidateSource) *Traversal {
	return &Traversal{
		ctx:     ctx,
		stun:    stun,
		turn:    turn,
		query:   query,
		hosts:   hosts,
		phase:   PhaseUnknown,
		natType: Unknown,
	}
}

// Phase reports the current state machine phase.
func (t *Traversal) Phase() Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phase
}

// NatType reports the last-detected NAT type.
func (t *Traversal) NatType() Type {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.natType
}

// DetectNAT runs STUN binding tests against every configured server,
// retrying each up to RetryCount times, and classifies the NAT type from
// the agreement among the mapped addresses returned. Zero STUN servers
// configured resolves to Unknown without error, per spec.md's edge case.
func (t *Traversal) DetectNAT() (Type, error) {
	t.mu.Lock()
	t.phase = PhaseDetecting
	t.mu.Unlock()

	addrs, err := t.publicAddressesFromSTUN()
	if err != nil || len(addrs) == 0 {
		t.mu.Lock()
		t.natType = Unknown
		t.phase = PhaseKnown
		t.mu.Unlock()
		return Unknown, nil
	}

	natType := classify(addrs)

	t.mu.Lock()
	t.publicAddresses = addrs
	t.natType = natType
	t.phase = PhaseKnown
	t.mu.Unlock()

	if t.ctx != nil && t.ctx.Log != nil {
		t.ctx.Log.Info("nat: detected type", "type", natType.String())
	}
	return natType, nil
}

func classify(addrs []ids.NodeAddress) Type {
	first := addrs[0]
	for _, a := range addrs[1:] {
		if a.IP != first.IP {
			return Symmetric
		}
	}
	return RestrictedCone
}

func (t *Traversal) publicAddressesFromSTUN() ([]ids.NodeAddress, error) {
	var addrs []ids.NodeAddress
	for _, server := range t.stun.Servers {
		addr, err := t.queryWithRetry(server)
		if err != nil {
			if t.ctx != nil && t.ctx.Log != nil {
				t.ctx.Log.Warn("nat: stun query failed", "server", server, "err", err)
			}
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (t *Traversal) queryWithRetry(server string) (ids.NodeAddress, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Duration(t.stun.RetryCount+1) * t.stun.Timeout

	var lastErr error
	for attempt := 0; attempt <= t.stun.RetryCount; attempt++ {
		addr, err := t.query.QueryBinding(server, t.stun.Timeout)
		if err == nil {
			return addr, nil
		}
		lastErr = err
		if attempt == t.stun.RetryCount {
			break
		}
		time.Sleep(b.NextBackOff())
	}
	return ids.NodeAddress{}, errkind.Wrap(errkind.Timeout, lastErr, "nat: stun query exhausted retries")
}

// PublicAddresses returns the last-cached set of mapped addresses.
func (t *Traversal) PublicAddresses() []ids.NodeAddress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ids.NodeAddress, len(t.publicAddresses))
	copy(out, t.publicAddresses)
	return out
}

// AllocateTURNRelay tries each configured TURN server in order, returning
// the first successful allocation or a Resource-kind NoRelayAvailable
// error if none succeed or none are configured.
func (t *Traversal) AllocateTURNRelay(alloc func(TurnServer) (Allocation, error)) (Allocation, error) {
	if t.turn == nil || len(t.turn.Servers) == 0 {
		return Allocation{}, errkind.New(errkind.Resource, "nat: no relay available")
	}

	t.mu.Lock()
	t.phase = PhaseAllocating
	t.mu.Unlock()

	var lastErr error
	for _, server := range t.turn.Servers {
		a, err := alloc(server)
		if err != nil {
			lastErr = err
			if t.ctx != nil && t.ctx.Log != nil {
				t.ctx.Log.Warn("nat: turn allocation failed", "err", err)
			}
			continue
		}
		t.mu.Lock()
		t.allocations = append(t.allocations, a)
		t.phase = PhaseRelayed
		t.mu.Unlock()
		return a, nil
	}
	if lastErr != nil {
		return Allocation{}, errkind.Wrap(errkind.Resource, lastErr, "nat: no relay available")
	}
	return Allocation{}, errkind.New(errkind.Resource, "nat: no relay available")
}

// GatherCandidates produces host, server-reflexive and (if the NAT type
// requires it) relay ICE candidates, sorted by descending priority.
func (t *Traversal) GatherCandidates(component uint8, allocTurn func(TurnServer) (Allocation, error)) ([]Candidate, error) {
	var candidates []Candidate

	hosts, err := t.hosts.HostAddresses()
	if err != nil {
		return nil, errkind.Wrap(errkind.Resource, err, "nat: enumerate host candidates")
	}
	for _, h := range hosts {
		candidates = append(candidates, Candidate{
			Type:       CandidateHost,
			Address:    h,
			Priority:   Priority(CandidateHost, 65535, component),
			Foundation: foundation(h),
		})
	}

	for _, addr := range t.PublicAddresses() {
		candidates = append(candidates, Candidate{
			Type:       CandidateServerReflexive,
			Address:    addr,
			Priority:   Priority(CandidateServerReflexive, 65535, component),
			Foundation: foundation(addr),
		})
	}

	if t.NatType().RequiresTURN() && allocTurn != nil {
		if a, err := t.AllocateTURNRelay(allocTurn); err == nil {
			candidates = append(candidates, Candidate{
				Type:       CandidateRelay,
				Address:    a.RelayAddr,
				Priority:   Priority(CandidateRelay, 65535, component),
				Foundation: foundation(a.RelayAddr),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Priority > candidates[j].Priority })
	return candidates, nil
}

func foundation(addr ids.NodeAddress) string {
	return addr.String()
}

// CandidatePair is one local/remote candidate pairing considered by
// Establish, ordered by pair priority: the higher of the two candidates'
// priorities first, the lower breaking ties.
type CandidatePair struct {
	Local  Candidate
	Remote Candidate
}

// priority is the pair priority ICE uses to order checks: the higher of
// the two candidates' priorities dominates, with the lower breaking ties,
// mirroring RFC 8445 §6.1.2.3 in spirit without the 2^32 guard-band math
// spec.md doesn't ask for.
func (p CandidatePair) priority() uint64 {
	lo, hi := uint64(p.Local.Priority), uint64(p.Remote.Priority)
	if lo > hi {
		lo, hi = hi, lo
	}
	return hi<<32 | lo
}

// Prober probes one candidate pair for connectivity, returning nil iff
// the pair is reachable.
type Prober func(pair CandidatePair) error

// Establish implements spec.md §4.3's establish(remote_candidates): it
// pairs local against remote candidates in priority-sorted order and
// returns the first pair for which probe succeeds. If no pair succeeds,
// it fails with a Resource-kind ConnectivityFailed error.
func (t *Traversal) Establish(local, remote []Candidate, probe Prober) (CandidatePair, error) {
	pairs := make([]CandidatePair, 0, len(local)*len(remote))
	for _, l := range local {
		for _, r := range remote {
			pairs = append(pairs, CandidatePair{Local: l, Remote: r})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].priority() > pairs[j].priority() })

	var lastErr error
	for _, pair := range pairs {
		if err := probe(pair); err != nil {
			lastErr = err
			if t.ctx != nil && t.ctx.Log != nil {
				t.ctx.Log.Warn("nat: connectivity probe failed", "local", pair.Local.Address.String(), "remote", pair.Remote.Address.String(), "err", err)
			}
			continue
		}
		return pair, nil
	}
	if lastErr != nil {
		return CandidatePair{}, errkind.Wrap(errkind.Resource, lastErr, "nat: connectivity failed")
	}
	return CandidatePair{}, errkind.New(errkind.Resource, "nat: connectivity failed")
}
