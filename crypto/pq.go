package crypto

import (
	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem768"
	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// PQ binds Signer and KEM to the ML-DSA (Dilithium mode3) and ML-KEM-768
// schemes from circl, the post-quantum primitives the data model assumes
// throughout N1 (sign/verify, encrypt_to/decrypt).
type PQ struct {
	signScheme sign.Scheme
	kemScheme  kem.Scheme
}

// NewPQ constructs the default post-quantum binding.
func NewPQ() *PQ {
	return &PQ{
		signScheme: mode3.Scheme(),
		kemScheme:  mlkem768.Scheme(),
	}
}

// GenerateSignKeyPair generates a fresh ML-DSA key pair for this node.
func (p *PQ) GenerateSignKeyPair() (PublicKey, PrivateKey, error) {
	pk, sk, err := p.signScheme.GenerateKey()
	if err != nil {
		return nil, nil, err
	}
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return pkBytes, skBytes, nil
}

// GenerateKEMKeyPair generates a fresh ML-KEM-768 key pair for this node.
func (p *PQ) GenerateKEMKeyPair() (PublicKey, PrivateKey, error) {
	pk, sk, err := p.kemScheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return pkBytes, skBytes, nil
}

// Sign implements Signer.
func (p *PQ) Sign(sk PrivateKey, msg []byte) (Signature, error) {
	priv, err := p.signScheme.UnmarshalBinaryPrivateKey(sk)
	if err != nil {
		return nil, err
	}
	sig := p.signScheme.Sign(priv, msg, nil)
	return sig, nil
}

// Verify implements Signer. It is constant-time with respect to the
// signature content because the underlying circl verification routine
// does not branch on the signature bytes beyond the fixed-size comparison
// internal to the scheme.
func (p *PQ) Verify(pk PublicKey, msg []byte, sig Signature) bool {
	pub, err := p.signScheme.UnmarshalBinaryPublicKey(pk)
	if err != nil {
		return false
	}
	return p.signScheme.Verify(pub, msg, sig, nil)
}

// Encapsulate implements KEM.
func (p *PQ) Encapsulate(pk PublicKey) (Ciphertext, []byte, error) {
	pub, err := p.kemScheme.UnmarshalBinaryPublicKey(pk)
	if err != nil {
		return nil, nil, err
	}
	ct, ss, err := p.kemScheme.Encapsulate(pub)
	if err != nil {
		return nil, nil, err
	}
	return ct, ss, nil
}

// Decapsulate implements KEM.
func (p *PQ) Decapsulate(sk PrivateKey, ct Ciphertext) ([]byte, error) {
	priv, err := p.kemScheme.UnmarshalBinaryPrivateKey(sk)
	if err != nil {
		return nil, err
	}
	return p.kemScheme.Decapsulate(priv, ct)
}
