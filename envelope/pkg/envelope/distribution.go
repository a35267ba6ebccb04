package envelope

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// claimAmount decides whether claimant may take a share of e at time now and how
// much. It reads only current record state, so any serialization order of claims
// produces a valid payout schedule.
func claimAmount(e *Envelope, claimant solana.PublicKey, now int64, entropy Entropy) (uint64, error) {
	if e.IsExpired(now) {
		return 0, ErrExpired
	}
	if e.HasClaimed(claimant) {
		return 0, ErrAlreadyClaimed
	}
	// Custody never claims from itself.
	if claimant.Equals(e.Address) {
		return 0, ErrNotAllowed
	}

	claimed := uint64(len(e.ClaimedBy))

	var amount uint64
	switch p := e.Policy.(type) {
	case DirectFixed:
		if !p.AllowedClaimant.Equals(claimant) {
			return 0, ErrNotAllowed
		}
		amount = p.Amount

	case GroupFixed:
		if claimed >= p.TotalSlots {
			return 0, ErrQuotaFull
		}
		amount = p.AmountPerClaimant

	case GroupRandom:
		if claimed >= p.TotalSlots {
			return 0, ErrQuotaFull
		}
		amount = randomShare(p.TotalSlots-claimed, e.Remaining(), entropy.Seed(now, claimant))

	default:
		return 0, fmt.Errorf("%w: %T", ErrUnknownPolicy, p)
	}

	// Unreachable while the arithmetic above holds; kept as the conservation guard.
	if amount > e.Remaining() {
		return 0, ErrInsufficientFunds
	}
	return amount, nil
}

// randomShare returns the payout for the next GroupRandom claimant. The last slot
// takes the whole pool; otherwise the share lies in [1, pool/slots].
func randomShare(remainingSlots, pool, seed uint64) uint64 {
	if remainingSlots == 1 {
		return pool
	}
	maxShare := pool / remainingSlots
	if maxShare == 0 {
		// Creation keeps pool >= slots. An empty pool fails the funds guard.
		return 1
	}
	return min(seed%maxShare+1, pool)
}
