// Package crypto defines the trait-level cryptographic capabilities the
// cores consume: sign/verify, KEM encapsulate/decapsulate, and hash. Per
// spec.md §1 the primitives themselves (ML-DSA, ML-KEM, BLAKE3) are
// external collaborators; this package states their contracts and
// provides one concrete binding per contract — BLAKE3 via
// github.com/zeebo/blake3, and post-quantum ML-DSA/ML-KEM via
// github.com/cloudflare/circl, mirroring the teacher's crypto/pq stub
// but with a real PQ backend plugged in instead of placeholders.
package crypto

import (
	"crypto/subtle"

	"github.com/zeebo/blake3"
)

// Signer signs and verifies messages under the node's own or a peer's
// public key. All methods must be constant-time with respect to secret
// material, per §6.
type Signer interface {
	// Sign returns a signature over msg under sk.
	Sign(sk PrivateKey, msg []byte) (Signature, error)
	// Verify reports whether sig is a valid signature over msg under pk.
	Verify(pk PublicKey, msg []byte, sig Signature) bool
}

// KEM encapsulates and decapsulates a shared secret under a recipient's
// public key, the basis of envelope encryption (§4.1).
type KEM interface {
	Encapsulate(pk PublicKey) (ct Ciphertext, sharedSecret []byte, err error)
	Decapsulate(sk PrivateKey, ct Ciphertext) (sharedSecret []byte, err error)
}

// PublicKey, PrivateKey, Signature and Ciphertext are opaque byte blobs;
// the concrete scheme (Dilithium mode3 / ML-KEM-768) decides their shape.
// PQ rejects a malformed key or ciphertext by returning circl's error as
// is (Verify returns false); it does not attach an errkind kind.
type (
	PublicKey  []byte
	PrivateKey []byte
	Signature  []byte
	Ciphertext []byte
)

// KeyHash returns hash(pk), used to bind a signer's identity into a
// MessageEnvelope (§3 sender_key_hash) without embedding the whole key.
func KeyHash(pk PublicKey) [32]byte {
	return Hash(pk)
}

// Hash computes BLAKE3-256 of data. BLAKE3 is the hash primitive named
// throughout the data model (vertex id, chunk payload hash, challenge
// puzzle hash); the cryptographic construction itself is out of scope,
// this is the stated contract with a concrete binding.
func Hash(data ...[]byte) [32]byte {
	h := blake3.New()
	for _, d := range data {
		_, _ = h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ConstantTimeEqual compares two byte slices in time independent of their
// content, used wherever a comparison touches secret or signature material.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
