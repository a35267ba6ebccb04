package envelope

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Ledger executes operations as all-or-nothing transactions. Operations touching
// the same record must be serialized: no transaction may observe another's
// partial writes. If fn returns an error nothing it wrote is kept.
type Ledger interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a consistent snapshot without locking records, so
	// it never waits behind Atomic. Writes made inside fn are discarded or
	// rejected.
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the ledger inside one transaction. Inside Atomic, reads of
// records hold them until the transaction ends.
type Tx interface {
	// UserState returns ErrUserStateNotFound when owner has none.
	UserState(ctx context.Context, owner solana.PublicKey) (*UserState, error)
	PutUserState(ctx context.Context, us *UserState) error

	// Envelope returns ErrEnvelopeNotFound when nothing lives at addr.
	Envelope(ctx context.Context, addr solana.PublicKey) (*Envelope, error)
	EnvelopeByID(ctx context.Context, owner solana.PublicKey, id uint64) (*Envelope, error)
	PutEnvelope(ctx context.Context, e *Envelope) error

	Balance(ctx context.Context, addr solana.PublicKey) (uint64, error)
	// Transfer moves native balance; it fails with ErrInsufficientBalance when
	// from cannot cover amount.
	Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error
	// Credit mints balance into addr. Only the admin airdrop uses it.
	Credit(ctx context.Context, addr solana.PublicKey, amount uint64) error
}
