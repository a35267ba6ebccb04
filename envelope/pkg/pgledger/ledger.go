// Package pgledger implements envelope.Ledger on PostgreSQL. Each Atomic call is
// one SQL transaction; records are locked with SELECT ... FOR UPDATE so
// operations on the same envelope, user state or account are serialized. View
// runs in a read-only REPEATABLE READ transaction and takes no row locks.
package pgledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
	"github.com/malbeclabs/envelope/utils/pkg/retry"
)

type Config struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
	Retry  retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	cfg.Retry.Retryable = isRetryable
	return nil
}

type Ledger struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Ping checks the pool can reach the database.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.cfg.Pool.Ping(ctx)
}

func (l *Ledger) Atomic(ctx context.Context, fn func(tx envelope.Tx) error) error {
	return l.run(ctx, pgx.TxOptions{}, true, fn)
}

func (l *Ledger) View(ctx context.Context, fn func(tx envelope.Tx) error) error {
	return l.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, false, fn)
}

func (l *Ledger) run(ctx context.Context, opts pgx.TxOptions, lock bool, fn func(tx envelope.Tx) error) error {
	attempt := 0
	return retry.Do(ctx, l.cfg.Retry, func() error {
		attempt++
		err := l.once(ctx, opts, lock, fn)
		if err != nil && isRetryable(err) {
			l.log.Warn("pgledger: transaction failed, retrying", "attempt", attempt, "read_only", !lock, "error", err)
		}
		return err
	})
}

func (l *Ledger) once(ctx context.Context, opts pgx.TxOptions, lock bool, fn func(tx envelope.Tx) error) error {
	pgTx, err := l.cfg.Pool.BeginTx(ctx, opts)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer pgTx.Rollback(ctx)

	if err := fn(&tx{tx: pgTx, lock: lock}); err != nil {
		return classify(err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

type tx struct {
	tx pgx.Tx
	// lock appends FOR UPDATE to record reads.
	lock bool
}

func (t *tx) forUpdate() string {
	if t.lock {
		return "FOR UPDATE"
	}
	return ""
}

func (t *tx) UserState(ctx context.Context, owner solana.PublicKey) (*envelope.UserState, error) {
	var (
		addr   string
		lastID int64
	)
	err := t.tx.QueryRow(ctx, `
		SELECT address, last_envelope_id
		FROM user_states
		WHERE owner = $1
		`+t.forUpdate(), owner.String()).Scan(&addr, &lastID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, envelope.ErrUserStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user state: %w", err)
	}

	address, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid user state address %q: %w", addr, err)
	}
	return &envelope.UserState{
		Owner:          owner,
		Address:        address,
		LastEnvelopeID: uint64(lastID),
	}, nil
}

func (t *tx) PutUserState(ctx context.Context, us *envelope.UserState) error {
	lastID, err := toInt64(us.LastEnvelopeID)
	if err != nil {
		return err
	}
	// The counter only moves forward; a stale writer affects no rows.
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO user_states (owner, address, last_envelope_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner) DO UPDATE
		SET last_envelope_id = EXCLUDED.last_envelope_id, updated_at = now()
		WHERE user_states.last_envelope_id < EXCLUDED.last_envelope_id
	`, us.Owner.String(), us.Address.String(), lastID)
	if err != nil {
		return fmt.Errorf("failed to upsert user state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if us.LastEnvelopeID == 0 {
			return envelope.ErrUserStateExists
		}
		return fmt.Errorf("%w: user state counter moved concurrently", envelope.ErrLedgerUnavailable)
	}
	return nil
}

const envelopeColumns = `
	address, owner, envelope_id, envelope_type, allowed_claimant, total_slots,
	amount_per_claimant, amount, total_claimed, withdrawn_amount, refunded_amount,
	expiry, created_at`

func (t *tx) Envelope(ctx context.Context, addr solana.PublicKey) (*envelope.Envelope, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+envelopeColumns+`
		FROM envelopes
		WHERE address = $1
		`+t.forUpdate(), addr.String())
	return t.scanEnvelope(ctx, row)
}

func (t *tx) EnvelopeByID(ctx context.Context, owner solana.PublicKey, id uint64) (*envelope.Envelope, error) {
	envelopeID, err := toInt64(id)
	if err != nil {
		return nil, envelope.ErrEnvelopeNotFound
	}
	row := t.tx.QueryRow(ctx, `SELECT `+envelopeColumns+`
		FROM envelopes
		WHERE owner = $1 AND envelope_id = $2
		`+t.forUpdate(), owner.String(), envelopeID)
	return t.scanEnvelope(ctx, row)
}

func (t *tx) scanEnvelope(ctx context.Context, row pgx.Row) (*envelope.Envelope, error) {
	var (
		r       envelopeRow
		allowed *string
	)
	err := row.Scan(&r.address, &r.owner, &r.envelopeID, &r.envelopeType, &allowed, &r.totalSlots,
		&r.amountPerClaimant, &r.amount, &r.totalClaimed, &r.withdrawnAmount, &r.refundedAmount,
		&r.expiry, &r.createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, envelope.ErrEnvelopeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query envelope: %w", err)
	}
	if allowed != nil {
		r.allowedClaimant = *allowed
	}

	e, err := r.toEnvelope()
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.Query(ctx, `
		SELECT claimant, amount, claimed_at
		FROM envelope_claims
		WHERE envelope_address = $1
		ORDER BY seq ASC
	`, r.address)
	if err != nil {
		return nil, fmt.Errorf("failed to query envelope claims: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			claimant  string
			amount    int64
			claimedAt int64
		)
		if err := rows.Scan(&claimant, &amount, &claimedAt); err != nil {
			return nil, fmt.Errorf("failed to scan envelope claim: %w", err)
		}
		pk, err := solana.PublicKeyFromBase58(claimant)
		if err != nil {
			return nil, fmt.Errorf("invalid claimant %q: %w", claimant, err)
		}
		e.ClaimedBy = append(e.ClaimedBy, pk)
		e.Claims = append(e.Claims, envelope.Claim{
			Claimant:  pk,
			Amount:    uint64(amount),
			ClaimedAt: claimedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate envelope claims: %w", err)
	}
	return e, nil
}

func (t *tx) PutEnvelope(ctx context.Context, e *envelope.Envelope) error {
	r, err := newEnvelopeRow(e)
	if err != nil {
		return err
	}
	var allowed *string
	if r.allowedClaimant != "" {
		allowed = &r.allowedClaimant
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO envelopes (`+envelopeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (address) DO UPDATE
		SET total_claimed = EXCLUDED.total_claimed,
		    withdrawn_amount = EXCLUDED.withdrawn_amount,
		    refunded_amount = EXCLUDED.refunded_amount
	`, r.address, r.owner, r.envelopeID, r.envelopeType, allowed, r.totalSlots,
		r.amountPerClaimant, r.amount, r.totalClaimed, r.withdrawnAmount, r.refundedAmount,
		r.expiry, r.createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: envelope id already used", envelope.ErrLedgerUnavailable)
		}
		return fmt.Errorf("failed to upsert envelope: %w", err)
	}

	// Claims are append-only; rows already stored are left as they are.
	for i, c := range e.Claims {
		amount, err := toInt64(c.Amount)
		if err != nil {
			return err
		}
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO envelope_claims (envelope_address, seq, claimant, amount, claimed_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (envelope_address, claimant) DO NOTHING
		`, r.address, i, c.Claimant.String(), amount, c.ClaimedAt); err != nil {
			return fmt.Errorf("failed to insert envelope claim: %w", err)
		}
	}
	return nil
}

func (t *tx) Balance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE address = $1`, addr.String()).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query balance: %w", err)
	}
	return uint64(balance), nil
}

func (t *tx) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error {
	delta, err := toInt64(amount)
	if err != nil {
		return err
	}
	if err := t.lockAccounts(ctx, from, to); err != nil {
		return err
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts
		SET balance = balance - $2, updated_at = now()
		WHERE address = $1 AND balance >= $2
	`, from.String(), delta)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if amount == 0 {
			return nil
		}
		return envelope.ErrInsufficientBalance
	}
	return t.credit(ctx, to, delta)
}

func (t *tx) Credit(ctx context.Context, addr solana.PublicKey, amount uint64) error {
	delta, err := toInt64(amount)
	if err != nil {
		return err
	}
	if err := t.lockAccounts(ctx, addr); err != nil {
		return err
	}
	return t.credit(ctx, addr, delta)
}

func (t *tx) credit(ctx context.Context, addr solana.PublicKey, delta int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (address, balance)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance, updated_at = now()
	`, addr.String(), delta)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

// lockAccounts takes row locks in address order so concurrent transfers over
// the same pair cannot deadlock.
func (t *tx) lockAccounts(ctx context.Context, addrs ...solana.PublicKey) error {
	keys := make([]string, 0, len(addrs))
	for _, a := range addrs {
		keys = append(keys, a.String())
	}
	sort.Strings(keys)

	rows, err := t.tx.Query(ctx, `
		SELECT address FROM accounts
		WHERE address = ANY($1)
		ORDER BY address
		FOR UPDATE
	`, keys)
	if err != nil {
		return fmt.Errorf("failed to lock accounts: %w", err)
	}
	rows.Close()
	return rows.Err()
}

func toInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, envelope.ErrBalanceOverflow
	}
	return int64(v), nil
}
