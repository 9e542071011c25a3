package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ruvnet/daa-sub007/crypto"
)

// TestAcceptRejectsStaleThenAcceptsOnceThenRejectsReplay mirrors §8
// testable property 6: an envelope with created_at_ms older than
// clock_skew is rejected with Authentication; the same envelope with a
// current timestamp is accepted once; replaying it immediately is
// rejected.
func TestAcceptRejectsStaleThenAcceptsOnceThenRejectsReplay(t *testing.T) {
	pq := crypto.NewPQ()
	pk, sk, err := pq.GenerateSignKeyPair()
	require.NoError(t, err)

	now := time.Now()
	guard := NewReplayGuard(DefaultClockSkewMs, time.Hour)

	stale := newTestEnvelope(t, []byte("stale"))
	stale.CreatedAtMs = uint64(now.Add(-time.Hour).UnixMilli())
	require.NoError(t, stale.Sign(pq, pk, sk))
	err = Accept(stale, pq, pk, guard, now)
	require.Error(t, err)

	fresh := newTestEnvelope(t, []byte("fresh"))
	fresh.CreatedAtMs = uint64(now.UnixMilli())
	require.NoError(t, fresh.Sign(pq, pk, sk))
	require.NoError(t, Accept(fresh, pq, pk, guard, now))

	// Replaying the exact same envelope immediately must be rejected.
	err = Accept(fresh, pq, pk, guard, now)
	require.Error(t, err)
}

func TestReplayGuardEvictsExpiredEntries(t *testing.T) {
	pq := crypto.NewPQ()
	pk, sk, err := pq.GenerateSignKeyPair()
	require.NoError(t, err)

	now := time.Now()
	guard := NewReplayGuard(DefaultClockSkewMs, time.Millisecond)

	env := newTestEnvelope(t, []byte("once"))
	env.CreatedAtMs = uint64(now.UnixMilli())
	require.NoError(t, env.Sign(pq, pk, sk))
	require.NoError(t, Accept(env, pq, pk, guard, now))

	later := now.Add(time.Second)
	env.CreatedAtMs = uint64(later.UnixMilli())
	require.NoError(t, env.Sign(pq, pk, sk))
	require.NoError(t, Accept(env, pq, pk, guard, later), "entry older than ttl must be evicted, not treated as a replay")
}

func TestReplayGuardRejectsEnvelopeTooFarInFuture(t *testing.T) {
	pq := crypto.NewPQ()
	pk, sk, err := pq.GenerateSignKeyPair()
	require.NoError(t, err)

	now := time.Now()
	guard := NewReplayGuard(DefaultClockSkewMs, time.Hour)

	env := newTestEnvelope(t, []byte("future"))
	env.CreatedAtMs = uint64(now.Add(time.Hour).UnixMilli())
	require.NoError(t, env.Sign(pq, pk, sk))
	require.Error(t, Accept(env, pq, pk, guard, now))
}
