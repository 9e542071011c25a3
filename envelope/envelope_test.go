package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ruvnet/daa-sub007/crypto"
	"github.com/ruvnet/daa-sub007/ids"
)

func newTestEnvelope(t *testing.T, payload []byte) *MessageEnvelope {
	t.Helper()
	id, err := NewID()
	require.NoError(t, err)
	var src, dst ids.PeerId
	src[0] = 1
	dst[0] = 2
	return &MessageEnvelope{
		ID:          id,
		Src:         src,
		Dst:         dst,
		Payload:     payload,
		Priority:    Normal,
		TTLMs:       60_000,
		CreatedAtMs: uint64(time.Now().UnixMilli()),
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pq := crypto.NewPQ()
	pk, sk, err := pq.GenerateSignKeyPair()
	require.NoError(t, err)

	env := newTestEnvelope(t, []byte("hello daa-net"))
	require.NoError(t, env.Sign(pq, pk, sk))
	require.NoError(t, env.Verify(pq, pk))
}

func TestVerifyRejectsMutatedPayload(t *testing.T) {
	pq := crypto.NewPQ()
	pk, sk, err := pq.GenerateSignKeyPair()
	require.NoError(t, err)

	env := newTestEnvelope(t, []byte("original payload"))
	require.NoError(t, env.Sign(pq, pk, sk))

	env.Payload[0] ^= 0xFF
	require.Error(t, env.Verify(pq, pk))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	pq := crypto.NewPQ()
	pk, sk, err := pq.GenerateSignKeyPair()
	require.NoError(t, err)
	otherPK, _, err := pq.GenerateSignKeyPair()
	require.NoError(t, err)

	env := newTestEnvelope(t, []byte("payload"))
	require.NoError(t, env.Sign(pq, pk, sk))
	require.Error(t, env.Verify(pq, otherPK))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	pq := crypto.NewPQ()
	pk, sk, err := pq.GenerateKEMKeyPair()
	require.NoError(t, err)

	env := newTestEnvelope(t, []byte("secret payload"))
	sealed, err := env.EncryptTo(pq, pk)
	require.NoError(t, err)

	plain, err := env.Decrypt(pq, sk, sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("secret payload"), plain)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	pq := crypto.NewPQ()
	pk, sk, err := pq.GenerateKEMKeyPair()
	require.NoError(t, err)

	env := newTestEnvelope(t, []byte("secret payload"))
	sealed, err := env.EncryptTo(pq, pk)
	require.NoError(t, err)

	sealed.Ciphertext[0] ^= 0xFF
	_, err = env.Decrypt(pq, sk, sealed)
	require.Error(t, err)
}

func TestWireEncodeDecodeRoundTrip(t *testing.T) {
	pq := crypto.NewPQ()
	pk, sk, err := pq.GenerateSignKeyPair()
	require.NoError(t, err)

	env := newTestEnvelope(t, []byte("wire payload"))
	require.NoError(t, env.Sign(pq, pk, sk))

	wire, err := env.EncodeWire()
	require.NoError(t, err)

	decoded, err := DecodeWire(wire)
	require.NoError(t, err)
	require.Equal(t, env.ID, decoded.ID)
	require.Equal(t, env.Payload, decoded.Payload)
	require.NoError(t, decoded.Verify(pq, pk))
}
