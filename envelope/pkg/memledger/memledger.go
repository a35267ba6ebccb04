// Package memledger is a process-local envelope.Ledger. A single mutex
// serializes transactions; writes are staged and applied only when the
// transaction function succeeds. Views share a read lock and never commit.
package memledger

import (
	"context"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
)

type envelopeKey struct {
	owner solana.PublicKey
	id    uint64
}

type Ledger struct {
	mu sync.RWMutex

	users     map[solana.PublicKey]envelope.UserState
	envelopes map[solana.PublicKey]*envelope.Envelope
	byID      map[envelopeKey]solana.PublicKey
	balances  map[solana.PublicKey]uint64
}

func New() *Ledger {
	return &Ledger{
		users:     make(map[solana.PublicKey]envelope.UserState),
		envelopes: make(map[solana.PublicKey]*envelope.Envelope),
		byID:      make(map[envelopeKey]solana.PublicKey),
		balances:  make(map[solana.PublicKey]uint64),
	}
}

func (l *Ledger) Atomic(ctx context.Context, fn func(tx envelope.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := l.newTx()
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (l *Ledger) View(ctx context.Context, fn func(tx envelope.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return fn(l.newTx())
}

func (l *Ledger) newTx() *tx {
	return &tx{
		l:         l,
		users:     make(map[solana.PublicKey]envelope.UserState),
		envelopes: make(map[solana.PublicKey]*envelope.Envelope),
		balances:  make(map[solana.PublicKey]uint64),
	}
}

// tx reads through to the ledger and buffers every write until commit.
type tx struct {
	l *Ledger

	users     map[solana.PublicKey]envelope.UserState
	envelopes map[solana.PublicKey]*envelope.Envelope
	balances  map[solana.PublicKey]uint64
}

func (t *tx) UserState(_ context.Context, owner solana.PublicKey) (*envelope.UserState, error) {
	if us, ok := t.users[owner]; ok {
		return &us, nil
	}
	if us, ok := t.l.users[owner]; ok {
		return &us, nil
	}
	return nil, envelope.ErrUserStateNotFound
}

func (t *tx) PutUserState(_ context.Context, us *envelope.UserState) error {
	t.users[us.Owner] = *us
	return nil
}

func (t *tx) Envelope(_ context.Context, addr solana.PublicKey) (*envelope.Envelope, error) {
	if e, ok := t.envelopes[addr]; ok {
		return e.Clone(), nil
	}
	if e, ok := t.l.envelopes[addr]; ok {
		return e.Clone(), nil
	}
	return nil, envelope.ErrEnvelopeNotFound
}

func (t *tx) EnvelopeByID(ctx context.Context, owner solana.PublicKey, id uint64) (*envelope.Envelope, error) {
	key := envelopeKey{owner: owner, id: id}
	for addr, e := range t.envelopes {
		if e.Owner == owner && e.EnvelopeID == id {
			return t.Envelope(ctx, addr)
		}
	}
	addr, ok := t.l.byID[key]
	if !ok {
		return nil, envelope.ErrEnvelopeNotFound
	}
	return t.Envelope(ctx, addr)
}

func (t *tx) PutEnvelope(_ context.Context, e *envelope.Envelope) error {
	t.envelopes[e.Address] = e.Clone()
	return nil
}

func (t *tx) Balance(_ context.Context, addr solana.PublicKey) (uint64, error) {
	return t.balance(addr), nil
}

func (t *tx) balance(addr solana.PublicKey) uint64 {
	if b, ok := t.balances[addr]; ok {
		return b
	}
	return t.l.balances[addr]
}

func (t *tx) Transfer(_ context.Context, from, to solana.PublicKey, amount uint64) error {
	if from == to {
		if t.balance(from) < amount {
			return envelope.ErrInsufficientBalance
		}
		return nil
	}
	fromBalance := t.balance(from)
	if fromBalance < amount {
		return envelope.ErrInsufficientBalance
	}
	toBalance := t.balance(to)
	if toBalance > math.MaxUint64-amount {
		return envelope.ErrBalanceOverflow
	}
	t.balances[from] = fromBalance - amount
	t.balances[to] = toBalance + amount
	return nil
}

func (t *tx) Credit(_ context.Context, addr solana.PublicKey, amount uint64) error {
	b := t.balance(addr)
	if b > math.MaxUint64-amount {
		return envelope.ErrBalanceOverflow
	}
	t.balances[addr] = b + amount
	return nil
}

func (t *tx) commit() {
	for owner, us := range t.users {
		t.l.users[owner] = us
	}
	for addr, e := range t.envelopes {
		t.l.envelopes[addr] = e
		t.l.byID[envelopeKey{owner: e.Owner, id: e.EnvelopeID}] = addr
	}
	for addr, b := range t.balances {
		t.l.balances[addr] = b
	}
}
