package envelope

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the program the addresses are derived under unless configured otherwise.
var DefaultProgramID = solana.MustPublicKeyFromBase58("8sVfWmonJAzAQnS4nYcxv3GBSs4rDpvmniRrApwrh1QK")

var (
	seedUserState = []byte("user_state")
	seedEnvelope  = []byte("envelope")
)

// DeriveUserStateAddress returns the deterministic address of owner's user state.
func DeriveUserStateAddress(programID, owner solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{seedUserState, owner[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive user state address: %w", err)
	}
	return addr, nil
}

// DeriveEnvelopeAddress returns the deterministic custody address of envelope id
// created by owner. Anyone can recompute it from the logical key.
func DeriveEnvelopeAddress(programID, owner solana.PublicKey, id uint64) (solana.PublicKey, error) {
	idBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(idBytes, id)
	addr, _, err := solana.FindProgramAddress([][]byte{seedEnvelope, owner[:], idBytes}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive envelope address: %w", err)
	}
	return addr, nil
}
