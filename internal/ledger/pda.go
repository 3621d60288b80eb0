package ledger

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

var (
	pdaMarker = []byte("ProgramDerivedAddress")

	// ErrInvalidSeedLength is returned for too many or too long seeds.
	ErrInvalidSeedLength = errors.New("ledger: invalid seed length")
	// ErrAddressOnCurve means the derived bytes form a valid ed25519 point.
	ErrAddressOnCurve = errors.New("ledger: derived address lies on the ed25519 curve")
	// ErrNoViableBump is returned when every bump yields an on-curve address.
	ErrNoViableBump = errors.New("ledger: unable to find a viable program address bump")
)

// CreateProgramAddress hashes seeds with the program id and rejects results
// that have a private key.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Pubkey{}, fmt.Errorf("%w: %d seeds", ErrInvalidSeedLength, len(seeds))
	}
	parts := make([][]byte, 0, len(seeds)+2)
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Pubkey{}, fmt.Errorf("%w: seed of %d bytes", ErrInvalidSeedLength, len(seed))
		}
		parts = append(parts, seed)
	}
	parts = append(parts, programID[:], pdaMarker)
	digest := HashOf(parts...)
	if IsOnCurve(digest[:]) {
		return Pubkey{}, ErrAddressOnCurve
	}
	return Pubkey(digest), nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrAddressOnCurve) {
			return Pubkey{}, 0, err
		}
	}
	return Pubkey{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether b decodes as a compressed edwards25519 point.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
