package solana

import (
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
)

// programAddressDomain is appended to every derivation so that derived
// addresses can never collide with hashes produced for other purposes.
var programAddressDomain = []byte("ProgramDerivedAddress")

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrExhaustedBumpSpace indicates that no bump in 0..=255 produced an
	// off-curve address. Derivation is deterministic, so retrying the same
	// inputs is pointless.
	ErrExhaustedBumpSpace = errors.New("unable to find a viable program address bump seed")
)

var (
	programHashCtor = sha256.New
)

// IsOnCurve reports whether id decodes to a valid compressed ed25519 point,
// which is the set of identities that may have an associated private key.
//
// Unfortunately, the edwards25519.ExtendedGroupElement (the EdwardsPoint) is
// internal to the golang.org/x/crypto library, so we rely (for now) on a
// deprecated open source alternative that exposes the same decoding used by
// ed25519.Verify().
func IsOnCurve(id Identity) bool {
	var A edwards25519.ExtendedGroupElement
	var raw [IdentitySize]byte = id
	return A.FromBytes(&raw)
}

// CreateProgramAddress mirrors the implementation of the Solana SDK's CreateProgramAddress.
//
// ProgramAddresses are public keys that _do not_ lie on the ed25519 curve to ensure that
// there is no associated private key. In the event that the program and seed parameters
// result in a valid public key, ErrInvalidPublicKey is returned.
//
// Callers that want a specific bump pass it as the final seed.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L158
func CreateProgramAddress(program Identity, seeds ...[]byte) (Identity, error) {
	var res Identity

	if len(seeds) > maxSeeds {
		return res, ErrTooManySeeds
	}

	h := programHashCtor()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return res, ErrMaxSeedLengthExceeded
		}

		if _, err := h.Write(s); err != nil {
			return res, errors.Wrap(err, "failed to hash seed")
		}
	}

	for _, v := range [][]byte{program[:], programAddressDomain} {
		if _, err := h.Write(v); err != nil {
			return res, errors.Wrap(err, "failed to hash seed")
		}
	}

	copy(res[:], h.Sum(nil))

	// Following the Solana SDK, we want to _reject_ the generated public key
	// if it's a valid compressed EdwardsPoint.
	//
	// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L182-L187
	if IsOnCurve(res) {
		return Identity{}, ErrInvalidPublicKey
	}

	return res, nil
}

// FindProgramAddressAndBump searches bump values 0 through 255 in increasing
// order and returns the first off-curve address along with the bump that
// produced it. The bump is hashed as a single byte seed directly after the
// caller's seeds.
func FindProgramAddressAndBump(program Identity, seeds ...[]byte) (Identity, uint8, error) {
	bumpSeed := []byte{0}
	withBump := make([][]byte, 0, len(seeds)+1)
	withBump = append(withBump, seeds...)
	withBump = append(withBump, bumpSeed)

	for bump := 0; bump <= math.MaxUint8; bump++ {
		bumpSeed[0] = uint8(bump)

		address, err := CreateProgramAddress(program, withBump...)
		if err == nil {
			return address, bumpSeed[0], nil
		}
		if err != ErrInvalidPublicKey {
			return Identity{}, 0, err
		}
	}

	return Identity{}, 0, ErrExhaustedBumpSpace
}

// FindProgramAddress is like FindProgramAddressAndBump, but only returns the
// address.
func FindProgramAddress(program Identity, seeds ...[]byte) (Identity, error) {
	address, _, err := FindProgramAddressAndBump(program, seeds...)
	return address, err
}

// VerifyProgramAddress reports whether address is the off-curve address
// derived from program, seeds and bump. Any malformed seed list fails
// verification.
func VerifyProgramAddress(address, program Identity, seeds [][]byte, bump uint8) bool {
	withBump := make([][]byte, 0, len(seeds)+1)
	withBump = append(withBump, seeds...)
	withBump = append(withBump, []byte{bump})

	derived, err := CreateProgramAddress(program, withBump...)
	if err != nil {
		return false
	}

	return derived == address && !IsOnCurve(address)
}
