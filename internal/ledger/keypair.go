package ledger

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/mr-tron/base58"
)

// Keypair holds an ed25519 signing key. The base58 form is the 64-byte
// secret-then-public encoding used by wallet tooling.
type Keypair struct {
	private ed25519.PrivateKey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{private: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keypair seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromBase58 decodes a 64-byte base58 secret key and checks that the
// embedded public half matches the seed.
func KeypairFromBase58(s string) (*Keypair, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode keypair: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("decode keypair: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	kp, err := KeypairFromSeed(raw[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(kp.private[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("decode keypair: public key does not match secret")
	}
	return kp, nil
}

func (k *Keypair) PublicKey() Pubkey {
	var p Pubkey
	copy(p[:], k.private[ed25519.SeedSize:])
	return p
}

func (k *Keypair) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.private, message))
	return sig
}

// Base58 renders the 64-byte secret key.
func (k *Keypair) Base58() string { return base58.Encode(k.private) }

// Verify checks sig over message for the given public key.
func Verify(pub Pubkey, message []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, sig[:])
}
