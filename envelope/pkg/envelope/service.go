package envelope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
)

type ServiceConfig struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Ledger    Ledger
	ProgramID solana.PublicKey
	Entropy   Entropy
}

func (cfg *ServiceConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = DefaultProgramID
	}
	if cfg.Entropy == nil {
		cfg.Entropy = TimestampEntropy{}
	}
	return nil
}

// Service runs the envelope lifecycle: user state allocation, create, claim and
// refund. Every operation is one ledger transaction.
type Service struct {
	log *slog.Logger
	cfg ServiceConfig
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// ProgramID returns the program the service derives addresses under.
func (s *Service) ProgramID() solana.PublicKey {
	return s.cfg.ProgramID
}

// Now returns the trusted clock reading in unix seconds.
func (s *Service) Now() int64 {
	return s.cfg.Clock.Now().Unix()
}

// CreateParams describes a new envelope.
type CreateParams struct {
	Policy      Policy
	ExpiryHours uint64
	// AutoInit allocates the creator's user state in the same transaction when it
	// does not exist yet.
	AutoInit bool
}

// ClaimResult is the outcome of a successful claim.
type ClaimResult struct {
	Envelope *Envelope
	Amount   uint64
}

// RefundResult is the outcome of a successful refund.
type RefundResult struct {
	Envelope *Envelope
	Amount   uint64
}

// InitUserState allocates owner's counter starting at zero.
func (s *Service) InitUserState(ctx context.Context, owner solana.PublicKey) (*UserState, error) {
	var us *UserState
	err := s.cfg.Ledger.Atomic(ctx, func(tx Tx) error {
		var err error
		us, err = s.initUserState(ctx, tx, owner)
		return err
	})
	recordOperation(opInitUserState, "", 0, err)
	if err != nil {
		return nil, err
	}
	s.log.Info("envelope: user state initialized", "owner", owner, "address", us.Address)
	return us, nil
}

func (s *Service) initUserState(ctx context.Context, tx Tx, owner solana.PublicKey) (*UserState, error) {
	_, err := tx.UserState(ctx, owner)
	if err == nil {
		return nil, ErrUserStateExists
	}
	if !errors.Is(err, ErrUserStateNotFound) {
		return nil, err
	}

	addr, err := DeriveUserStateAddress(s.cfg.ProgramID, owner)
	if err != nil {
		return nil, err
	}
	us := &UserState{
		Owner:          owner,
		Address:        addr,
		LastEnvelopeID: 0,
	}
	if err := tx.PutUserState(ctx, us); err != nil {
		return nil, err
	}
	return us, nil
}

// Create locks the policy's total amount from creator into a new envelope.
func (s *Service) Create(ctx context.Context, creator solana.PublicKey, params CreateParams) (*Envelope, error) {
	kind := policyKind(params.Policy)

	var created *Envelope
	err := s.create(ctx, creator, params, &created)
	recordOperation(opCreate, kind, amountOf(created), err)
	if err != nil {
		s.log.Debug("envelope: create rejected", "owner", creator, "type", kind, "error", err)
		return nil, err
	}

	s.log.Info("envelope: created",
		"owner", creator,
		"envelope_id", created.EnvelopeID,
		"address", created.Address,
		"type", kind,
		"amount", created.Amount,
		"expiry", created.Expiry)
	return created, nil
}

func (s *Service) create(ctx context.Context, creator solana.PublicKey, params CreateParams, out **Envelope) error {
	if params.Policy == nil {
		return fmt.Errorf("%w: policy is required", ErrInvalidPolicy)
	}
	if err := ValidatePolicy(params.Policy); err != nil {
		return err
	}
	if params.ExpiryHours == 0 {
		return ErrInvalidExpiry
	}

	return s.cfg.Ledger.Atomic(ctx, func(tx Tx) error {
		us, err := tx.UserState(ctx, creator)
		if errors.Is(err, ErrUserStateNotFound) && params.AutoInit {
			us, err = s.initUserState(ctx, tx, creator)
			if errors.Is(err, ErrUserStateExists) {
				// Lost an init race; the retry sees the winner's record.
				err = fmt.Errorf("%w: user state initialized concurrently", ErrLedgerUnavailable)
			}
		}
		if err != nil {
			return err
		}
		if !us.Owner.Equals(creator) {
			return ErrInvalidOwner
		}

		if us.LastEnvelopeID == math.MaxUint64 {
			return ErrMathOverflow
		}
		id := us.LastEnvelopeID + 1

		total, err := TotalAmount(params.Policy)
		if err != nil {
			return err
		}
		if total > MaxCreateAmount {
			return ErrExceedMaxCreate
		}

		now := s.Now()
		expiry, err := expiryAt(now, params.ExpiryHours)
		if err != nil {
			return err
		}

		addr, err := DeriveEnvelopeAddress(s.cfg.ProgramID, creator, id)
		if err != nil {
			return err
		}

		if err := tx.Transfer(ctx, creator, addr, total); err != nil {
			return err
		}

		e := &Envelope{
			Address:    addr,
			Owner:      creator,
			EnvelopeID: id,
			Policy:     params.Policy,
			Amount:     total,
			Expiry:     expiry,
			CreatedAt:  now,
		}
		if err := tx.PutEnvelope(ctx, e); err != nil {
			return err
		}

		us.LastEnvelopeID = id
		if err := tx.PutUserState(ctx, us); err != nil {
			return err
		}

		*out = e
		return nil
	})
}

// Claim pays claimant its share of the envelope at addr.
func (s *Service) Claim(ctx context.Context, claimant, addr solana.PublicKey) (*ClaimResult, error) {
	var (
		res  *ClaimResult
		kind PolicyKind
	)
	err := s.cfg.Ledger.Atomic(ctx, func(tx Tx) error {
		e, err := tx.Envelope(ctx, addr)
		if err != nil {
			return err
		}
		kind = e.Policy.Kind()

		now := s.Now()
		amount, err := claimAmount(e, claimant, now, s.cfg.Entropy)
		if err != nil {
			return err
		}

		if err := tx.Transfer(ctx, addr, claimant, amount); err != nil {
			return err
		}

		e.TotalClaimed += amount
		e.WithdrawnAmount += amount
		e.ClaimedBy = append(e.ClaimedBy, claimant)
		e.Claims = append(e.Claims, Claim{
			Claimant:  claimant,
			Amount:    amount,
			ClaimedAt: now,
		})
		if err := tx.PutEnvelope(ctx, e); err != nil {
			return err
		}

		res = &ClaimResult{Envelope: e, Amount: amount}
		return nil
	})
	if err != nil {
		recordOperation(opClaim, kind, 0, err)
		s.log.Debug("envelope: claim rejected", "claimant", claimant, "address", addr, "error", err)
		return nil, err
	}
	recordOperation(opClaim, kind, res.Amount, nil)

	s.log.Info("envelope: claim success",
		"claimant", claimant,
		"address", addr,
		"amount", res.Amount,
		"type", kind,
		"total_claimed", res.Envelope.TotalClaimed,
		"total_amount", res.Envelope.Amount)
	return res, nil
}

// Refund returns the unclaimed remainder of an expired envelope to its owner and
// marks the envelope exhausted.
func (s *Service) Refund(ctx context.Context, owner, addr solana.PublicKey) (*RefundResult, error) {
	var (
		res  *RefundResult
		kind PolicyKind
	)
	err := s.cfg.Ledger.Atomic(ctx, func(tx Tx) error {
		e, err := tx.Envelope(ctx, addr)
		if err != nil {
			return err
		}
		kind = e.Policy.Kind()

		if s.Now() < e.Expiry {
			return ErrNotExpired
		}
		if !e.Owner.Equals(owner) {
			return ErrInvalidOwner
		}
		remaining := e.Remaining()
		if remaining == 0 {
			return ErrNothingToRefund
		}

		if err := tx.Transfer(ctx, addr, owner, remaining); err != nil {
			return err
		}

		e.RefundedAmount += remaining
		e.TotalClaimed = e.Amount
		if err := tx.PutEnvelope(ctx, e); err != nil {
			return err
		}

		res = &RefundResult{Envelope: e, Amount: remaining}
		return nil
	})
	if err != nil {
		recordOperation(opRefund, kind, 0, err)
		s.log.Debug("envelope: refund rejected", "owner", owner, "address", addr, "error", err)
		return nil, err
	}
	recordOperation(opRefund, kind, res.Amount, nil)

	s.log.Info("envelope: refund success", "owner", owner, "address", addr, "amount", res.Amount)
	return res, nil
}

func (s *Service) GetUserState(ctx context.Context, owner solana.PublicKey) (*UserState, error) {
	var us *UserState
	err := s.cfg.Ledger.View(ctx, func(tx Tx) error {
		var err error
		us, err = tx.UserState(ctx, owner)
		return err
	})
	return us, err
}

func (s *Service) GetEnvelope(ctx context.Context, addr solana.PublicKey) (*Envelope, error) {
	var e *Envelope
	err := s.cfg.Ledger.View(ctx, func(tx Tx) error {
		var err error
		e, err = tx.Envelope(ctx, addr)
		return err
	})
	return e, err
}

func (s *Service) GetEnvelopeByID(ctx context.Context, owner solana.PublicKey, id uint64) (*Envelope, error) {
	var e *Envelope
	err := s.cfg.Ledger.View(ctx, func(tx Tx) error {
		var err error
		e, err = tx.EnvelopeByID(ctx, owner, id)
		return err
	})
	return e, err
}

// ListEnvelopes returns a page of owner's envelopes, newest first, and the total
// number owner has created. Ids are issued without gaps, so a page is a
// contiguous id range.
func (s *Service) ListEnvelopes(ctx context.Context, owner solana.PublicKey, limit, offset uint64) ([]*Envelope, uint64, error) {
	var (
		page  []*Envelope
		total uint64
	)
	err := s.cfg.Ledger.View(ctx, func(tx Tx) error {
		page = nil
		us, err := tx.UserState(ctx, owner)
		if err != nil {
			return err
		}
		total = us.LastEnvelopeID
		if offset >= total {
			return nil
		}
		for id := total - offset; id >= 1 && uint64(len(page)) < limit; id-- {
			e, err := tx.EnvelopeByID(ctx, owner, id)
			if err != nil {
				return fmt.Errorf("envelope %d: %w", id, err)
			}
			page = append(page, e)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

// Info returns the client view of the envelope at addr.
func (s *Service) Info(ctx context.Context, addr solana.PublicKey) (Info, error) {
	e, err := s.GetEnvelope(ctx, addr)
	if err != nil {
		return Info{}, err
	}
	return NewInfo(e, s.Now()), nil
}

func (s *Service) Balance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	var balance uint64
	err := s.cfg.Ledger.View(ctx, func(tx Tx) error {
		var err error
		balance, err = tx.Balance(ctx, addr)
		return err
	})
	return balance, err
}

// Airdrop credits addr with amount of native balance. It exists for development
// ledgers where there is no other way to fund an account.
func (s *Service) Airdrop(ctx context.Context, addr solana.PublicKey, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	var balance uint64
	err := s.cfg.Ledger.Atomic(ctx, func(tx Tx) error {
		if err := tx.Credit(ctx, addr, amount); err != nil {
			return err
		}
		var err error
		balance, err = tx.Balance(ctx, addr)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("envelope: airdrop", "address", addr, "amount", amount, "balance", balance)
	return balance, nil
}

func expiryAt(now int64, hours uint64) (int64, error) {
	if now < 0 || hours > uint64(math.MaxInt64-now)/SecondsPerHour {
		return 0, ErrMathOverflow
	}
	return now + int64(hours)*SecondsPerHour, nil
}

func policyKind(p Policy) PolicyKind {
	if p == nil {
		return ""
	}
	return p.Kind()
}

func amountOf(e *Envelope) uint64 {
	if e == nil {
		return 0
	}
	return e.Amount
}
