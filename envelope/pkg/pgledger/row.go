package pgledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
)

// envelopeRow is the flattened column layout of the envelopes table. The policy
// variant is stored as envelope_type plus the columns it uses.
type envelopeRow struct {
	address           string
	owner             string
	envelopeID        int64
	envelopeType      string
	allowedClaimant   string
	totalSlots        int64
	amountPerClaimant int64
	amount            int64
	totalClaimed      int64
	withdrawnAmount   int64
	refundedAmount    int64
	expiry            int64
	createdAt         int64
}

func newEnvelopeRow(e *envelope.Envelope) (envelopeRow, error) {
	r := envelopeRow{
		address:      e.Address.String(),
		owner:        e.Owner.String(),
		envelopeType: string(e.Policy.Kind()),
		expiry:       e.Expiry,
		createdAt:    e.CreatedAt,
	}

	var slots, perClaimant uint64
	switch p := e.Policy.(type) {
	case envelope.DirectFixed:
		r.allowedClaimant = p.AllowedClaimant.String()
		slots = 1
	case envelope.GroupFixed:
		slots = p.TotalSlots
		perClaimant = p.AmountPerClaimant
	case envelope.GroupRandom:
		slots = p.TotalSlots
	default:
		return envelopeRow{}, fmt.Errorf("%w: %T", envelope.ErrUnknownPolicy, p)
	}

	for _, f := range []struct {
		dst *int64
		v   uint64
	}{
		{&r.envelopeID, e.EnvelopeID},
		{&r.totalSlots, slots},
		{&r.amountPerClaimant, perClaimant},
		{&r.amount, e.Amount},
		{&r.totalClaimed, e.TotalClaimed},
		{&r.withdrawnAmount, e.WithdrawnAmount},
		{&r.refundedAmount, e.RefundedAmount},
	} {
		v, err := toInt64(f.v)
		if err != nil {
			return envelopeRow{}, err
		}
		*f.dst = v
	}
	return r, nil
}

func (r envelopeRow) toEnvelope() (*envelope.Envelope, error) {
	address, err := solana.PublicKeyFromBase58(r.address)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope address %q: %w", r.address, err)
	}
	owner, err := solana.PublicKeyFromBase58(r.owner)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope owner %q: %w", r.owner, err)
	}

	var policy envelope.Policy
	switch envelope.PolicyKind(r.envelopeType) {
	case envelope.PolicyKindDirectFixed:
		allowed, err := solana.PublicKeyFromBase58(r.allowedClaimant)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed claimant %q: %w", r.allowedClaimant, err)
		}
		policy = envelope.DirectFixed{AllowedClaimant: allowed, Amount: uint64(r.amount)}
	case envelope.PolicyKindGroupFixed:
		policy = envelope.GroupFixed{TotalSlots: uint64(r.totalSlots), AmountPerClaimant: uint64(r.amountPerClaimant)}
	case envelope.PolicyKindGroupRandom:
		policy = envelope.GroupRandom{TotalSlots: uint64(r.totalSlots), TotalAmount: uint64(r.amount)}
	default:
		return nil, fmt.Errorf("%w: %q", envelope.ErrUnknownPolicy, r.envelopeType)
	}

	return &envelope.Envelope{
		Address:         address,
		Owner:           owner,
		EnvelopeID:      uint64(r.envelopeID),
		Policy:          policy,
		Amount:          uint64(r.amount),
		TotalClaimed:    uint64(r.totalClaimed),
		WithdrawnAmount: uint64(r.withdrawnAmount),
		RefundedAmount:  uint64(r.refundedAmount),
		Expiry:          r.expiry,
		CreatedAt:       r.createdAt,
	}, nil
}
