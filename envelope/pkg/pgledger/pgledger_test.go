package pgledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
	"github.com/malbeclabs/envelope/envelope/pkg/pgledger"
	envtesting "github.com/malbeclabs/envelope/utils/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = envtesting.PublicKey(1)
	bob   = envtesting.PublicKey(2)
	carol = envtesting.PublicKey(3)
)

type testEnv struct {
	ledger *pgledger.Ledger
	svc    *envelope.Service
	clock  *clockwork.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if testDB == nil {
		t.Skip("skipping PostgreSQL test in short mode")
	}

	log := envtesting.NewLogger()
	connStr := envtesting.NewTestDatabase(t, testDB)
	require.NoError(t, pgledger.MigrateUp(log, connStr))

	ledger, err := pgledger.New(pgledger.Config{
		Logger: log,
		Pool:   envtesting.NewTestPool(t, connStr),
	})
	require.NoError(t, err)
	require.NoError(t, ledger.Ping(t.Context()))

	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	svc, err := envelope.NewService(envelope.ServiceConfig{
		Logger: log,
		Clock:  clock,
		Ledger: ledger,
	})
	require.NoError(t, err)
	return &testEnv{ledger: ledger, svc: svc, clock: clock}
}

func (e *testEnv) balance(t *testing.T, addr solana.PublicKey) uint64 {
	t.Helper()
	b, err := e.svc.Balance(t.Context(), addr)
	require.NoError(t, err)
	return b
}

func TestPgLedger_Lifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := t.Context()

	_, err := env.svc.Airdrop(ctx, alice, 10_000)
	require.NoError(t, err)

	us, err := env.svc.InitUserState(ctx, alice)
	require.NoError(t, err)
	_, err = env.svc.InitUserState(ctx, alice)
	require.ErrorIs(t, err, envelope.ErrUserStateExists)

	got, err := env.svc.GetUserState(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, us, got)

	direct, err := env.svc.Create(ctx, alice, envelope.CreateParams{
		Policy:      envelope.DirectFixed{AllowedClaimant: bob, Amount: 2_000},
		ExpiryHours: 1,
	})
	require.NoError(t, err)
	group, err := env.svc.Create(ctx, alice, envelope.CreateParams{
		Policy:      envelope.GroupRandom{TotalSlots: 3, TotalAmount: 6_000},
		ExpiryHours: 2,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), direct.EnvelopeID)
	require.Equal(t, uint64(2), group.EnvelopeID)
	require.Equal(t, uint64(2_000), env.balance(t, alice))

	_, err = env.svc.Claim(ctx, carol, direct.Address)
	require.ErrorIs(t, err, envelope.ErrNotAllowed)

	res, err := env.svc.Claim(ctx, bob, direct.Address)
	require.NoError(t, err)
	require.Equal(t, uint64(2_000), res.Amount)
	_, err = env.svc.Claim(ctx, bob, direct.Address)
	require.ErrorIs(t, err, envelope.ErrAlreadyClaimed)

	first, err := env.svc.Claim(ctx, bob, group.Address)
	require.NoError(t, err)
	require.LessOrEqual(t, first.Amount, uint64(2_000))

	stored, err := env.svc.GetEnvelopeByID(ctx, alice, 2)
	require.NoError(t, err)
	require.Equal(t, group.Address, stored.Address)
	require.Equal(t, envelope.GroupRandom{TotalSlots: 3, TotalAmount: 6_000}, stored.Policy)
	require.Equal(t, first.Amount, stored.TotalClaimed)
	require.Len(t, stored.Claims, 1)
	require.Equal(t, bob, stored.Claims[0].Claimant)
	require.Equal(t, env.svc.Now(), stored.Claims[0].ClaimedAt)

	storedDirect, err := env.svc.GetEnvelope(ctx, direct.Address)
	require.NoError(t, err)
	require.Equal(t, envelope.DirectFixed{AllowedClaimant: bob, Amount: 2_000}, storedDirect.Policy)

	env.clock.Advance(2 * time.Hour)

	_, err = env.svc.Claim(ctx, carol, group.Address)
	require.ErrorIs(t, err, envelope.ErrExpired)

	refund, err := env.svc.Refund(ctx, alice, group.Address)
	require.NoError(t, err)
	require.Equal(t, 6_000-first.Amount, refund.Amount)
	_, err = env.svc.Refund(ctx, alice, group.Address)
	require.ErrorIs(t, err, envelope.ErrNothingToRefund)

	require.Equal(t, 2_000+refund.Amount, env.balance(t, alice))
	require.Equal(t, 2_000+first.Amount, env.balance(t, bob))
	require.Zero(t, env.balance(t, group.Address))

	_, err = env.svc.GetEnvelope(ctx, carol)
	require.ErrorIs(t, err, envelope.ErrEnvelopeNotFound)
}

func TestPgLedger_RollbackOnError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := t.Context()

	_, err := env.svc.Airdrop(ctx, alice, 500)
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, alice, envelope.CreateParams{
		Policy:      envelope.GroupFixed{TotalSlots: 2, AmountPerClaimant: 300},
		ExpiryHours: 1,
		AutoInit:    true,
	})
	require.ErrorIs(t, err, envelope.ErrInsufficientBalance)

	// The auto-initialized user state rolled back with the failed transfer.
	_, err = env.svc.GetUserState(ctx, alice)
	require.ErrorIs(t, err, envelope.ErrUserStateNotFound)
	require.Equal(t, uint64(500), env.balance(t, alice))

	boom := errors.New("boom")
	err = env.ledger.Atomic(ctx, func(tx envelope.Tx) error {
		if err := tx.Credit(ctx, bob, 100); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, env.balance(t, bob))
}

func TestPgLedger_UserStateCounterOnlyMovesForward(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := t.Context()

	_, err := env.svc.InitUserState(ctx, alice)
	require.NoError(t, err)

	require.NoError(t, env.ledger.Atomic(ctx, func(tx envelope.Tx) error {
		us, err := tx.UserState(ctx, alice)
		if err != nil {
			return err
		}
		us.LastEnvelopeID = 5
		return tx.PutUserState(ctx, us)
	}))

	err = env.ledger.Atomic(ctx, func(tx envelope.Tx) error {
		us, err := tx.UserState(ctx, alice)
		if err != nil {
			return err
		}
		us.LastEnvelopeID = 3
		return tx.PutUserState(ctx, us)
	})
	require.ErrorIs(t, err, envelope.ErrLedgerUnavailable)

	us, err := env.svc.GetUserState(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(5), us.LastEnvelopeID)
}

func TestPgLedger_ConcurrentClaims(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := t.Context()

	_, err := env.svc.Airdrop(ctx, alice, 5_000)
	require.NoError(t, err)
	e, err := env.svc.Create(ctx, alice, envelope.CreateParams{
		Policy:      envelope.GroupFixed{TotalSlots: 5, AmountPerClaimant: 1_000},
		ExpiryHours: 1,
		AutoInit:    true,
	})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := range 20 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.svc.Claim(ctx, envtesting.PublicKey(100+n), e.Address)
			if err == nil {
				succeeded.Add(1)
				return
			}
			assert.ErrorIs(t, err, envelope.ErrQuotaFull)
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(5), succeeded.Load())
	got, err := env.svc.GetEnvelope(ctx, e.Address)
	require.NoError(t, err)
	require.Equal(t, got.Amount, got.TotalClaimed)
	require.Len(t, got.Claims, 5)
	require.Zero(t, env.balance(t, e.Address))
}

func TestPgLedger_ViewDoesNotWaitForRowLocks(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := t.Context()

	_, err := env.svc.Airdrop(ctx, alice, 3_000)
	require.NoError(t, err)
	e, err := env.svc.Create(ctx, alice, envelope.CreateParams{
		Policy:      envelope.GroupFixed{TotalSlots: 3, AmountPerClaimant: 1_000},
		ExpiryHours: 1,
		AutoInit:    true,
	})
	require.NoError(t, err)

	locked := make(chan struct{})
	release := make(chan struct{})
	holderErr := make(chan error, 1)
	go func() {
		holderErr <- env.ledger.Atomic(ctx, func(tx envelope.Tx) error {
			if _, err := tx.Envelope(ctx, e.Address); err != nil {
				return err
			}
			if _, err := tx.UserState(ctx, alice); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	got, err := env.svc.GetEnvelope(readCtx, e.Address)
	require.NoError(t, err)
	require.Equal(t, e.Address, got.Address)
	page, total, err := env.svc.ListEnvelopes(readCtx, alice, 10, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), total)
	require.Len(t, page, 1)

	close(release)
	require.NoError(t, <-holderErr)
}

func TestPgLedger_ViewIsReadOnly(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := t.Context()

	err := env.ledger.View(ctx, func(tx envelope.Tx) error {
		return tx.Credit(ctx, alice, 100)
	})
	require.Error(t, err)
	require.Zero(t, env.balance(t, alice))
}

func TestPgLedger_ConcurrentCreates(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := t.Context()

	_, err := env.svc.Airdrop(ctx, alice, 10_000)
	require.NoError(t, err)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[uint64]bool{}
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := env.svc.Create(ctx, alice, envelope.CreateParams{
				Policy:      envelope.GroupFixed{TotalSlots: 1, AmountPerClaimant: 1_000},
				ExpiryHours: 1,
				AutoInit:    true,
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[e.EnvelopeID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, ids, 10)
	us, err := env.svc.GetUserState(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(10), us.LastEnvelopeID)
	require.Zero(t, env.balance(t, alice))
}

func TestPgLedger_Migrations(t *testing.T) {
	t.Parallel()
	if testDB == nil {
		t.Skip("skipping PostgreSQL test in short mode")
	}
	log := envtesting.NewLogger()
	connStr := envtesting.NewTestDatabase(t, testDB)

	require.NoError(t, pgledger.MigrateUp(log, connStr))
	require.NoError(t, pgledger.MigrateStatus(log, connStr))
	require.NoError(t, pgledger.MigrateDown(log, connStr))
	require.NoError(t, pgledger.MigrateUp(log, connStr))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool := envtesting.NewTestPool(t, connStr)
	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM envelopes`).Scan(&n))
	require.Zero(t, n)
}
