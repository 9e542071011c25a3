package envelope

import (
	"crypto/rand"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/ruvnet/daa-sub007/crypto"
	"github.com/ruvnet/daa-sub007/errkind"
)

// Sealed is the on-wire encrypted form of an envelope's payload: a KEM
// ciphertext establishing the shared secret, plus the AEAD-sealed body.
type Sealed struct {
	KEMCiphertext crypto.Ciphertext
	Nonce         [chacha20poly1305.NonceSize]byte
	Ciphertext    []byte
}

// aeadAAD binds (id, src, dst, created_at_ms) into the AEAD's associated
// data so none of them can be swapped without detection, even though they
// travel outside the sealed payload.
func (m *MessageEnvelope) aeadAAD() []byte {
	aad := make([]byte, 0, len(m.ID)+64+8)
	aad = append(aad, []byte(m.ID)...)
	aad = append(aad, m.Src.Bytes()...)
	aad = append(aad, m.Dst.Bytes()...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], m.CreatedAtMs)
	aad = append(aad, ts[:]...)
	return aad
}

// EncryptTo seals m.Payload for recipientPK: a KEM encapsulation derives a
// shared secret, BLAKE3(shared secret) becomes the ChaCha20-Poly1305 key,
// and the AEAD binds (id, src, dst, created_at_ms) as associated data. The
// Sealed payload replaces m.Payload for transport.
func (m *MessageEnvelope) EncryptTo(kem crypto.KEM, recipientPK crypto.PublicKey) (*Sealed, error) {
	ct, shared, err := kem.Encapsulate(recipientPK)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fatal, err, "envelope: kem encapsulate")
	}
	key := crypto.Hash(shared)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, errkind.Wrap(errkind.Fatal, err, "envelope: construct aead")
	}
	var nonce [chacha20poly1305.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errkind.Wrap(errkind.Fatal, err, "envelope: nonce")
	}
	sealed := aead.Seal(nil, nonce[:], m.Payload, m.aeadAAD())
	return &Sealed{KEMCiphertext: ct, Nonce: nonce, Ciphertext: sealed}, nil
}

// Decrypt recovers the plaintext payload from a Sealed blob using sk,
// verifying the AEAD tag and associated data against m's own header fields.
func (m *MessageEnvelope) Decrypt(kemImpl crypto.KEM, sk crypto.PrivateKey, s *Sealed) ([]byte, error) {
	shared, err := kemImpl.Decapsulate(sk, s.KEMCiphertext)
	if err != nil {
		return nil, errkind.Wrap(errkind.Authentication, err, "envelope: kem decapsulate")
	}
	key := crypto.Hash(shared)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, errkind.Wrap(errkind.Fatal, err, "envelope: construct aead")
	}
	plain, err := aead.Open(nil, s.Nonce[:], s.Ciphertext, m.aeadAAD())
	if err != nil {
		return nil, errkind.New(errkind.Authentication, "envelope: aead open failed")
	}
	return plain, nil
}
