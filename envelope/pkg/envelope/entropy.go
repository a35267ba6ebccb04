package envelope

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Entropy supplies the seed for GroupRandom shares. The share algorithm only
// requires a uint64; the source decides how predictable it is.
type Entropy interface {
	Seed(now int64, claimant solana.PublicKey) uint64
}

// TimestampEntropy multiplies the unix time by the first byte of the claimant key.
// It matches the on-chain program and is publicly derivable: anyone who can
// predict the timestamp can predict the share.
type TimestampEntropy struct{}

func (TimestampEntropy) Seed(now int64, claimant solana.PublicKey) uint64 {
	return uint64(now) * uint64(claimant[0])
}

// CryptoEntropy draws seeds from crypto/rand. Shares are no longer reproducible
// from the timestamp and claimant key.
type CryptoEntropy struct{}

func (CryptoEntropy) Seed(int64, solana.PublicKey) uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms.
		panic(fmt.Sprintf("envelope: crypto/rand failed: %v", err))
	}
	return binary.LittleEndian.Uint64(b[:])
}

// EntropyByName resolves a configured entropy source.
func EntropyByName(name string) (Entropy, error) {
	switch name {
	case "", "timestamp":
		return TimestampEntropy{}, nil
	case "crypto":
		return CryptoEntropy{}, nil
	default:
		return nil, fmt.Errorf("unknown entropy source %q", name)
	}
}
