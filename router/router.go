// Package router implements N4: message routing over the peer set Manager
// tracks, with Direct, Flood and Anonymous strategies (§4.4). Grounded on
// the ChainRouter shape in luxfi-consensus/networking/router/chain_router.go,
// generalized from per-chain dispatch to the spec's strategy-based routing.
package router

import (
	"math/rand"

	"github.com/cespare/xxhash/v2"

	"github.com/ruvnet/daa-sub007/errkind"
	"github.com/ruvnet/daa-sub007/ids"
	"github.com/ruvnet/daa-sub007/peer"
)

// StrategyKind discriminates a routing Strategy.
type StrategyKind uint8

const (
	StrategyDirect StrategyKind = iota
	StrategyFlood
	StrategyAnonymous
)

// Strategy selects how Route computes an envelope's path.
type Strategy struct {
	Kind Kind
	Dst  ids.PeerId
	Hops int
}

// Kind is an alias kept for readability at call sites (router.Strategy{Kind: router.Direct, ...}).
type Kind = StrategyKind

const (
	Direct    = StrategyDirect
	Flood     = StrategyFlood
	Anonymous = StrategyAnonymous
)

// Router computes delivery paths over the live peer set.
type Router struct {
	peers *peer.Manager
}

// NewRouter constructs a Router bound to a peer Manager.
func NewRouter(peers *peer.Manager) *Router {
	return &Router{peers: peers}
}

// Route computes the path an envelope with the given id and source should
// take under strategy.
func (r *Router) Route(msgID string, src ids.PeerId, strategy Strategy) ([]ids.PeerId, error) {
	switch strategy.Kind {
	case StrategyDirect:
		return r.routeDirect(strategy.Dst)
	case StrategyFlood:
		return r.routeFlood(src), nil
	case StrategyAnonymous:
		return r.routeAnonymous(msgID, strategy.Hops)
	default:
		return nil, errkind.New(errkind.Validation, "router: unknown routing strategy")
	}
}

func (r *Router) routeDirect(dst ids.PeerId) ([]ids.PeerId, error) {
	if dst == (ids.PeerId{}) {
		return nil, errkind.New(errkind.Validation, "router: direct route requires a known peer id")
	}
	return []ids.PeerId{dst}, nil
}

func (r *Router) routeFlood(src ids.PeerId) []ids.PeerId {
	connected := r.peers.Connected()
	out := make([]ids.PeerId, 0, len(connected))
	for _, id := range connected {
		if id != src {
			out = append(out, id)
		}
	}
	return out
}

// routeAnonymous returns a random permutation of exactly hops distinct
// peers, seeded deterministically by msgID so retries of the same message
// retrace the same path.
func (r *Router) routeAnonymous(msgID string, hops int) ([]ids.PeerId, error) {
	connected := r.peers.Connected()
	if len(connected) < hops {
		return nil, errkind.New(errkind.Resource, "router: insufficient peers for anonymous route")
	}

	seed := int64(xxhash.Sum64String(msgID))
	rng := rand.New(rand.NewSource(seed))

	shuffled := make([]ids.PeerId, len(connected))
	copy(shuffled, connected)
	sortPeers(shuffled)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	return shuffled[:hops], nil
}

func sortPeers(p []ids.PeerId) {
	for i := 1; i < len(p); i++ {
		for j := i; j > 0 && p[j].Less(p[j-1]); j-- {
			p[j], p[j-1] = p[j-1], p[j]
		}
	}
}
