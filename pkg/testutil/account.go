package testutil

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-runtime/pkg/solana"
)

// NewRandomAccount returns a fresh on-curve identity and the key that can
// sign for it.
func NewRandomAccount(t *testing.T) (solana.Identity, ed25519.PrivateKey) {
	id, key, err := solana.NewRandomIdentity()
	require.NoError(t, err)
	return id, key
}

// NewRandomIdentity is like NewRandomAccount for callers that never sign.
func NewRandomIdentity(t *testing.T) solana.Identity {
	id, _ := NewRandomAccount(t)
	return id
}
