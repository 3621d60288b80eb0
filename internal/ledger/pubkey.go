package ledger

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	PubkeyLength    = 32
	HashLength      = 32
	SignatureLength = 64
)

// Pubkey is a 32-byte account address, rendered in base58.
type Pubkey [PubkeyLength]byte

// Well-known builtin program addresses.
var (
	SystemProgramID        = Pubkey{}
	ComputeBudgetProgramID = MustParsePubkey("ComputeBudget111111111111111111111111111111")
	NativeLoaderID         = MustParsePubkey("NativeLoader1111111111111111111111111111111")
)

// ParsePubkey decodes a base58 address.
func ParsePubkey(s string) (Pubkey, error) {
	var p Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return p, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(raw) != PubkeyLength {
		return p, fmt.Errorf("decode pubkey %q: expected %d bytes, got %d", s, PubkeyLength, len(raw))
	}
	copy(p[:], raw)
	return p, nil
}

// MustParsePubkey is ParsePubkey for compile-time constants.
func MustParsePubkey(s string) Pubkey {
	p, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PubkeyFromBytes copies a 32-byte slice into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var p Pubkey
	if len(b) != PubkeyLength {
		return p, fmt.Errorf("pubkey must be %d bytes, got %d", PubkeyLength, len(b))
	}
	copy(p[:], b)
	return p, nil
}

func (p Pubkey) String() string { return base58.Encode(p[:]) }

func (p Pubkey) Bytes() []byte { return append([]byte(nil), p[:]...) }

func (p Pubkey) IsZero() bool { return p == Pubkey{} }

func (p Pubkey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Hash identifies a slot and serves as the recency token of a transaction.
type Hash [HashLength]byte

// HashOf returns the sha256 digest of the concatenated parts.
func HashOf(parts ...[]byte) Hash {
	h := sha256.New()
	for _, part := range parts {
		h.Write(part)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("decode hash %q: %w", s, err)
	}
	if len(raw) != HashLength {
		return h, fmt.Errorf("decode hash %q: expected %d bytes, got %d", s, HashLength, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func (h Hash) String() string { return base58.Encode(h[:]) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Signature is an ed25519 signature; the first signature of a transaction is its id.
type Signature [SignatureLength]byte

func ParseSignature(s string) (Signature, error) {
	var sig Signature
	raw, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != SignatureLength {
		return sig, fmt.Errorf("decode signature: expected %d bytes, got %d", SignatureLength, len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}

func (s Signature) String() string { return base58.Encode(s[:]) }

func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Signature) UnmarshalText(text []byte) error {
	parsed, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
