package envelope

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/ruvnet/daa-sub007/crypto"
	"github.com/ruvnet/daa-sub007/errkind"
)

// DefaultClockSkewMs is the default ±clock_skew window §4.1's replay/skew
// invariant allows an envelope's created_at_ms to drift from local clock.
const DefaultClockSkewMs = 5000

// ReplayGuard enforces §4.1's replay/skew invariant: an envelope whose
// created_at_ms is more than ±clock_skew outside local clock is rejected,
// and only the first arrival of a given (sender, id) pair is accepted —
// any immediate replay of the same envelope is rejected too. One guard is
// shared across every envelope received from a given peer set.
type ReplayGuard struct {
	skewMs uint64
	ttl    time.Duration

	mu   sync.Mutex
	seen map[string]time.Time // "id|sender_key_hash" -> first-seen time
}

// NewReplayGuard builds a guard with the given skew window (ms) and how
// long a seen envelope id is remembered before it may be forgotten.
func NewReplayGuard(skewMs uint64, rememberFor time.Duration) *ReplayGuard {
	return &ReplayGuard{
		skewMs: skewMs,
		ttl:    rememberFor,
		seen:   make(map[string]time.Time),
	}
}

func seenKey(m *MessageEnvelope) string {
	return m.ID + "|" + hex.EncodeToString(m.SenderKeyHash[:])
}

// Check validates m's created_at_ms against now and rejects a previously
// seen (id, sender) pair, per §4.1's invariant and testable property 6.
// It must run after signature verification so an attacker can't exhaust
// the replay cache with unsigned, unauthenticated ids.
func (g *ReplayGuard) Check(m *MessageEnvelope, now time.Time) error {
	nowMs := uint64(now.UnixMilli())
	var skew uint64
	if nowMs > m.CreatedAtMs {
		skew = nowMs - m.CreatedAtMs
	} else {
		skew = m.CreatedAtMs - nowMs
	}
	if skew > g.skewMs {
		return errkind.New(errkind.Authentication, "envelope: created_at_ms outside clock skew window")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.evictExpiredLocked(now)

	key := seenKey(m)
	if _, ok := g.seen[key]; ok {
		return errkind.New(errkind.Authentication, "envelope: replay detected")
	}
	g.seen[key] = now
	return nil
}

func (g *ReplayGuard) evictExpiredLocked(now time.Time) {
	for k, seenAt := range g.seen {
		if now.Sub(seenAt) > g.ttl {
			delete(g.seen, k)
		}
	}
}

// Accept runs Verify followed by the clock-skew/replay check, the full
// N1 acceptance path an envelope must pass before its payload is handed
// upward. guard is shared per connection/peer so replay tracking holds
// across multiple envelopes.
func Accept(m *MessageEnvelope, signer crypto.Signer, pk crypto.PublicKey, guard *ReplayGuard, now time.Time) error {
	if err := m.Verify(signer, pk); err != nil {
		return err
	}
	return guard.Check(m, now)
}
