package envelope

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

type fixedEntropy uint64

func (f fixedEntropy) Seed(int64, solana.PublicKey) uint64 { return uint64(f) }

func testKey(n byte) solana.PublicKey {
	var pk solana.PublicKey
	for i := range pk {
		pk[i] = n + byte(i)
	}
	return pk
}

func TestEnvelope_TotalAmount(t *testing.T) {
	t.Parallel()

	t.Run("direct fixed is the amount", func(t *testing.T) {
		t.Parallel()
		total, err := TotalAmount(DirectFixed{AllowedClaimant: testKey(1), Amount: 5_000_000})
		require.NoError(t, err)
		require.Equal(t, uint64(5_000_000), total)
	})

	t.Run("group fixed multiplies slots by amount", func(t *testing.T) {
		t.Parallel()
		total, err := TotalAmount(GroupFixed{TotalSlots: 4, AmountPerClaimant: 1_000})
		require.NoError(t, err)
		require.Equal(t, uint64(4_000), total)
	})

	t.Run("group fixed overflow", func(t *testing.T) {
		t.Parallel()
		_, err := TotalAmount(GroupFixed{TotalSlots: math.MaxUint64, AmountPerClaimant: 2})
		require.ErrorIs(t, err, ErrMathOverflow)
	})

	t.Run("group random is the total", func(t *testing.T) {
		t.Parallel()
		total, err := TotalAmount(GroupRandom{TotalSlots: 3, TotalAmount: 9_000})
		require.NoError(t, err)
		require.Equal(t, uint64(9_000), total)
	})

	t.Run("nil policy", func(t *testing.T) {
		t.Parallel()
		_, err := TotalAmount(nil)
		require.ErrorIs(t, err, ErrUnknownPolicy)
	})
}

func TestEnvelope_ValidatePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		policy  Policy
		wantErr error
	}{
		{"direct ok", DirectFixed{AllowedClaimant: testKey(1), Amount: 1}, nil},
		{"direct zero claimant", DirectFixed{Amount: 1}, ErrInvalidPolicy},
		{"direct zero amount", DirectFixed{AllowedClaimant: testKey(1)}, ErrInvalidPolicy},
		{"group fixed ok", GroupFixed{TotalSlots: 2, AmountPerClaimant: 1}, nil},
		{"group fixed zero slots", GroupFixed{AmountPerClaimant: 1}, ErrInvalidPolicy},
		{"group fixed zero amount", GroupFixed{TotalSlots: 2}, ErrInvalidPolicy},
		{"group random ok", GroupRandom{TotalSlots: 3, TotalAmount: 3}, nil},
		{"group random zero slots", GroupRandom{TotalAmount: 3}, ErrInvalidPolicy},
		{"group random pool below slots", GroupRandom{TotalSlots: 4, TotalAmount: 3}, ErrInvalidPolicy},
		{"nil", nil, ErrUnknownPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePolicy(tt.policy)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEnvelope_RandomShare(t *testing.T) {
	t.Parallel()

	t.Run("last slot takes the pool", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, uint64(1234), randomShare(1, 1234, 99))
	})

	t.Run("share is within one and pool over slots", func(t *testing.T) {
		t.Parallel()
		for seed := uint64(0); seed < 10_000; seed += 7 {
			share := randomShare(3, 9_000, seed)
			require.GreaterOrEqual(t, share, uint64(1))
			require.LessOrEqual(t, share, uint64(3_000))
		}
	})

	t.Run("seed reduces modulo max share", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, uint64(1), randomShare(2, 10, 5))  // max 5, 5%5+1
		require.Equal(t, uint64(5), randomShare(2, 10, 4))  // 4%5+1
		require.Equal(t, uint64(3), randomShare(2, 10, 12)) // 12%5+1
	})

	t.Run("leaves at least one unit per later slot", func(t *testing.T) {
		t.Parallel()
		pool, slots := uint64(5), uint64(5)
		for slots > 0 {
			share := randomShare(slots, pool, math.MaxUint64)
			require.GreaterOrEqual(t, share, uint64(1))
			pool -= share
			slots--
			require.GreaterOrEqual(t, pool, slots)
		}
		require.Zero(t, pool)
	})
}

func TestEnvelope_ClaimAmount(t *testing.T) {
	t.Parallel()

	const now = int64(1_700_000_000)
	claimant := testKey(7)

	newEnvelope := func(p Policy) *Envelope {
		total, err := TotalAmount(p)
		require.NoError(t, err)
		return &Envelope{Owner: testKey(1), EnvelopeID: 1, Policy: p, Amount: total, Expiry: now + SecondsPerHour}
	}

	t.Run("expired is checked first", func(t *testing.T) {
		t.Parallel()
		e := newEnvelope(DirectFixed{AllowedClaimant: testKey(2), Amount: 10})
		e.ClaimedBy = []solana.PublicKey{claimant}
		_, err := claimAmount(e, claimant, e.Expiry, fixedEntropy(0))
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("already claimed before eligibility", func(t *testing.T) {
		t.Parallel()
		e := newEnvelope(DirectFixed{AllowedClaimant: testKey(2), Amount: 10})
		e.ClaimedBy = []solana.PublicKey{claimant}
		_, err := claimAmount(e, claimant, now, fixedEntropy(0))
		require.ErrorIs(t, err, ErrAlreadyClaimed)
	})

	t.Run("direct fixed rejects other claimants", func(t *testing.T) {
		t.Parallel()
		e := newEnvelope(DirectFixed{AllowedClaimant: testKey(2), Amount: 10})
		_, err := claimAmount(e, claimant, now, fixedEntropy(0))
		require.ErrorIs(t, err, ErrNotAllowed)
	})

	t.Run("custody address cannot claim", func(t *testing.T) {
		t.Parallel()
		e := newEnvelope(GroupFixed{TotalSlots: 3, AmountPerClaimant: 10})
		e.Address = testKey(9)
		_, err := claimAmount(e, e.Address, now, fixedEntropy(0))
		require.ErrorIs(t, err, ErrNotAllowed)
	})

	t.Run("direct fixed pays the full amount", func(t *testing.T) {
		t.Parallel()
		e := newEnvelope(DirectFixed{AllowedClaimant: claimant, Amount: 10})
		amount, err := claimAmount(e, claimant, now, fixedEntropy(0))
		require.NoError(t, err)
		require.Equal(t, uint64(10), amount)
	})

	t.Run("group fixed quota", func(t *testing.T) {
		t.Parallel()
		e := newEnvelope(GroupFixed{TotalSlots: 1, AmountPerClaimant: 10})
		e.ClaimedBy = []solana.PublicKey{testKey(3)}
		e.TotalClaimed = 10
		_, err := claimAmount(e, claimant, now, fixedEntropy(0))
		require.ErrorIs(t, err, ErrQuotaFull)
	})

	t.Run("group random quota", func(t *testing.T) {
		t.Parallel()
		e := newEnvelope(GroupRandom{TotalSlots: 1, TotalAmount: 10})
		e.ClaimedBy = []solana.PublicKey{testKey(3)}
		e.TotalClaimed = 10
		_, err := claimAmount(e, claimant, now, fixedEntropy(0))
		require.ErrorIs(t, err, ErrQuotaFull)
	})

	t.Run("group random last slot takes remainder", func(t *testing.T) {
		t.Parallel()
		e := newEnvelope(GroupRandom{TotalSlots: 2, TotalAmount: 100})
		e.ClaimedBy = []solana.PublicKey{testKey(3)}
		e.TotalClaimed = 37
		amount, err := claimAmount(e, claimant, now, fixedEntropy(123456))
		require.NoError(t, err)
		require.Equal(t, uint64(63), amount)
	})

	t.Run("funds guard rejects payouts above remaining", func(t *testing.T) {
		t.Parallel()
		e := newEnvelope(GroupFixed{TotalSlots: 2, AmountPerClaimant: 10})
		// Bookkeeping that no valid sequence of operations produces.
		e.TotalClaimed = 15
		_, err := claimAmount(e, claimant, now, fixedEntropy(0))
		require.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("refunded envelope cannot be claimed", func(t *testing.T) {
		t.Parallel()
		e := newEnvelope(GroupRandom{TotalSlots: 3, TotalAmount: 30})
		e.TotalClaimed = e.Amount
		_, err := claimAmount(e, claimant, now, fixedEntropy(0))
		require.ErrorIs(t, err, ErrInsufficientFunds)
	})
}

func TestEnvelope_TimestampEntropy(t *testing.T) {
	t.Parallel()

	pk := testKey(3)
	require.Equal(t, uint64(3_000), TimestampEntropy{}.Seed(1_000, pk))
	require.Zero(t, TimestampEntropy{}.Seed(1_000, testKey(0)))

	// Wrapping multiplication.
	big := uint64(math.MaxInt64)
	require.Equal(t, big*3, TimestampEntropy{}.Seed(math.MaxInt64, pk))
}

func TestEnvelope_EntropyByName(t *testing.T) {
	t.Parallel()

	e, err := EntropyByName("")
	require.NoError(t, err)
	require.IsType(t, TimestampEntropy{}, e)

	e, err = EntropyByName("crypto")
	require.NoError(t, err)
	require.IsType(t, CryptoEntropy{}, e)

	_, err = EntropyByName("dice")
	require.Error(t, err)
}

func TestEnvelope_Code(t *testing.T) {
	t.Parallel()

	code, ok := Code(ErrInvalidOwner)
	require.True(t, ok)
	require.Equal(t, ErrorCode{Code: 6000, Name: "InvalidOwner"}, code)

	code, ok = Code(ErrInsufficientFunds)
	require.True(t, ok)
	require.Equal(t, 6009, code.Code)

	_, ok = Code(ErrEnvelopeNotFound)
	require.True(t, ok)

	_, ok = Code(errUnrelated{})
	require.False(t, ok)
}

type errUnrelated struct{}

func (errUnrelated) Error() string { return "unrelated" }
