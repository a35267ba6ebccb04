package envelope

import (
	"slices"

	"github.com/gagliardetto/solana-go"
)

// MaxCreateAmount caps the balance a single envelope may lock (10 SOL in lamports).
const MaxCreateAmount uint64 = 10_000_000_000

// SecondsPerHour converts expiry hours to the clock's unit.
const SecondsPerHour = 3600

// UserState is the per-creator counter used to allocate envelope ids.
type UserState struct {
	Owner          solana.PublicKey `json:"owner"`
	Address        solana.PublicKey `json:"address"`
	LastEnvelopeID uint64           `json:"last_envelope_id"`
}

// Claim records a single payout from an envelope.
type Claim struct {
	Claimant  solana.PublicKey `json:"claimant"`
	Amount    uint64           `json:"amount"`
	ClaimedAt int64            `json:"claimed_at"`
}

// Envelope is the custody record for a locked balance.
type Envelope struct {
	Address         solana.PublicKey
	Owner           solana.PublicKey
	EnvelopeID      uint64
	Policy          Policy
	Amount          uint64
	TotalClaimed    uint64
	WithdrawnAmount uint64
	RefundedAmount  uint64
	Expiry          int64
	CreatedAt       int64
	ClaimedBy       []solana.PublicKey
	Claims          []Claim
}

// Remaining is the balance not yet paid out or refunded.
func (e *Envelope) Remaining() uint64 {
	return e.Amount - e.TotalClaimed
}

// HasClaimed reports whether claimant already took a share.
func (e *Envelope) HasClaimed(claimant solana.PublicKey) bool {
	return slices.Contains(e.ClaimedBy, claimant)
}

// IsExpired reports whether claims are closed at the given unix time.
func (e *Envelope) IsExpired(now int64) bool {
	return now >= e.Expiry
}

// Clone returns a deep copy so ledgers can stage writes without aliasing.
func (e *Envelope) Clone() *Envelope {
	c := *e
	c.ClaimedBy = slices.Clone(e.ClaimedBy)
	c.Claims = slices.Clone(e.Claims)
	return &c
}

// Info is the read model served to clients.
type Info struct {
	Address         string  `json:"address"`
	Owner           string  `json:"owner"`
	EnvelopeID      uint64  `json:"envelope_id"`
	EnvelopeType    string  `json:"envelope_type"`
	AllowedAddress  *string `json:"allowed_address,omitempty"`
	TotalUsers      uint64  `json:"total_users"`
	AmountPerUser   *uint64 `json:"amount_per_user,omitempty"`
	TotalAmount     uint64  `json:"total_amount"`
	TotalClaimed    uint64  `json:"total_claimed"`
	WithdrawnAmount uint64  `json:"withdrawn_amount"`
	RefundedAmount  uint64  `json:"refunded_amount"`
	RemainingAmount uint64  `json:"remaining_amount"`
	ClaimedCount    uint64  `json:"claimed_count"`
	Claims          []Claim `json:"claims"`
	Expiry          int64   `json:"expiry"`
	CreatedAt       int64   `json:"created_at"`
	IsExpired       bool    `json:"is_expired"`
}

// NewInfo builds the client view of e as of now.
func NewInfo(e *Envelope, now int64) Info {
	info := Info{
		Address:         e.Address.String(),
		Owner:           e.Owner.String(),
		EnvelopeID:      e.EnvelopeID,
		EnvelopeType:    string(e.Policy.Kind()),
		TotalUsers:      Slots(e.Policy),
		TotalAmount:     e.Amount,
		TotalClaimed:    e.TotalClaimed,
		WithdrawnAmount: e.WithdrawnAmount,
		RefundedAmount:  e.RefundedAmount,
		RemainingAmount: e.Remaining(),
		ClaimedCount:    uint64(len(e.ClaimedBy)),
		Claims:          e.Claims,
		Expiry:          e.Expiry,
		CreatedAt:       e.CreatedAt,
		IsExpired:       e.IsExpired(now),
	}
	if info.Claims == nil {
		info.Claims = []Claim{}
	}
	switch p := e.Policy.(type) {
	case DirectFixed:
		allowed := p.AllowedClaimant.String()
		info.AllowedAddress = &allowed
	case GroupFixed:
		per := p.AmountPerClaimant
		info.AmountPerUser = &per
	}
	return info
}
