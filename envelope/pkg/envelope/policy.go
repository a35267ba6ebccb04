package envelope

import (
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

// PolicyKind names a distribution policy variant.
type PolicyKind string

const (
	PolicyKindDirectFixed PolicyKind = "direct_fixed"
	PolicyKindGroupFixed  PolicyKind = "group_fixed"
	PolicyKindGroupRandom PolicyKind = "group_random"
)

// Policy is the distribution rule chosen when an envelope is created. The set of
// variants is closed: DirectFixed, GroupFixed and GroupRandom.
type Policy interface {
	Kind() PolicyKind
	isPolicy()
}

// DirectFixed pays the whole amount to a single allowed claimant.
type DirectFixed struct {
	AllowedClaimant solana.PublicKey
	Amount          uint64
}

// GroupFixed pays AmountPerClaimant to each of up to TotalSlots claimants.
type GroupFixed struct {
	TotalSlots        uint64
	AmountPerClaimant uint64
}

// GroupRandom splits TotalAmount across up to TotalSlots claimants. The last slot
// always receives whatever remains.
type GroupRandom struct {
	TotalSlots  uint64
	TotalAmount uint64
}

func (DirectFixed) Kind() PolicyKind { return PolicyKindDirectFixed }
func (GroupFixed) Kind() PolicyKind  { return PolicyKindGroupFixed }
func (GroupRandom) Kind() PolicyKind { return PolicyKindGroupRandom }

func (DirectFixed) isPolicy() {}
func (GroupFixed) isPolicy()  {}
func (GroupRandom) isPolicy() {}

// TotalAmount returns the balance that must be locked to fund the policy.
func TotalAmount(p Policy) (uint64, error) {
	switch p := p.(type) {
	case DirectFixed:
		return p.Amount, nil
	case GroupFixed:
		hi, lo := bits.Mul64(p.TotalSlots, p.AmountPerClaimant)
		if hi != 0 {
			return 0, ErrMathOverflow
		}
		return lo, nil
	case GroupRandom:
		return p.TotalAmount, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnknownPolicy, p)
	}
}

// ValidatePolicy rejects parameters that could never produce a claimable envelope.
func ValidatePolicy(p Policy) error {
	switch p := p.(type) {
	case DirectFixed:
		if p.AllowedClaimant.IsZero() {
			return fmt.Errorf("%w: allowed claimant is required", ErrInvalidPolicy)
		}
		if p.Amount == 0 {
			return fmt.Errorf("%w: amount must be positive", ErrInvalidPolicy)
		}
	case GroupFixed:
		if p.TotalSlots == 0 {
			return fmt.Errorf("%w: total slots must be positive", ErrInvalidPolicy)
		}
		if p.AmountPerClaimant == 0 {
			return fmt.Errorf("%w: amount per claimant must be positive", ErrInvalidPolicy)
		}
	case GroupRandom:
		if p.TotalSlots == 0 {
			return fmt.Errorf("%w: total slots must be positive", ErrInvalidPolicy)
		}
		// Every slot pays at least one unit.
		if p.TotalAmount < p.TotalSlots {
			return fmt.Errorf("%w: total amount %d is less than total slots %d", ErrInvalidPolicy, p.TotalAmount, p.TotalSlots)
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnknownPolicy, p)
	}
	return nil
}

// Slots returns the number of claimants a policy admits.
func Slots(p Policy) uint64 {
	switch p := p.(type) {
	case DirectFixed:
		return 1
	case GroupFixed:
		return p.TotalSlots
	case GroupRandom:
		return p.TotalSlots
	default:
		return 0
	}
}
