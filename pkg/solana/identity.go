package solana

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

// IdentitySize is the fixed width of every program and account identity.
const IdentitySize = ed25519.PublicKeySize

// Identity names a program or an account on the ledger. Identities are opaque
// and compared byte-wise.
type Identity [IdentitySize]byte

// ZeroIdentity is the all-zero identity, which is also the system program.
var ZeroIdentity Identity

// IdentityFromPublicKey converts an ed25519 public key into an Identity.
func IdentityFromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != IdentitySize {
		return id, errors.Errorf("invalid public key length: %d", len(pub))
	}
	copy(id[:], pub)
	return id, nil
}

// MustIdentityFromPublicKey is like IdentityFromPublicKey, but panics on
// malformed input.
func MustIdentityFromPublicKey(pub ed25519.PublicKey) Identity {
	id, err := IdentityFromPublicKey(pub)
	if err != nil {
		panic(err)
	}
	return id
}

// IdentityFromBase58 parses the base58 text form of an Identity.
func IdentityFromBase58(value string) (Identity, error) {
	var id Identity

	decoded, err := base58.Decode(value)
	if err != nil {
		return id, errors.Wrap(err, "invalid base58 identity")
	}

	if len(decoded) != IdentitySize {
		return id, errors.Errorf("invalid identity length: %d", len(decoded))
	}

	copy(id[:], decoded)
	return id, nil
}

// NewRandomIdentity generates a fresh keypair and returns its identity
// alongside the private key, which can later sign transactions.
func NewRandomIdentity() (Identity, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Identity{}, nil, err
	}
	return MustIdentityFromPublicKey(pub), priv, nil
}

// PublicKey returns the identity as an ed25519 public key.
func (id Identity) PublicKey() ed25519.PublicKey {
	pub := make([]byte, IdentitySize)
	copy(pub, id[:])
	return pub
}

// String returns the base58 text form of the identity.
func (id Identity) String() string {
	return base58.Encode(id[:])
}

// IsZero reports whether id is the all-zero identity.
func (id Identity) IsZero() bool {
	return id == ZeroIdentity
}

func compareIdentities(a, b Identity) int {
	return bytes.Compare(a[:], b[:])
}
