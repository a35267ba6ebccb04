package envtesting

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// PublicKey returns a deterministic key whose bytes start at n. The first byte,
// which seeds timestamp entropy, is byte(n).
func PublicKey(n int) solana.PublicKey {
	b := make([]byte, solana.PublicKeyLength)
	for i := range b {
		b[i] = byte(n + i)
	}
	return solana.PublicKeyFromBytes(b)
}

// NewWallet returns a fresh signing key.
func NewWallet(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}
