package envelope

import "errors"

// Program errors. Codes 6000-6009 follow the numbering of the on-chain program.
var (
	ErrInvalidOwner      = errors.New("invalid owner")
	ErrAlreadyClaimed    = errors.New("already claimed by this address")
	ErrNotAllowed        = errors.New("not allowed to claim this envelope")
	ErrQuotaFull         = errors.New("quota full - all claims taken")
	ErrExpired           = errors.New("envelope has expired")
	ErrNothingToRefund   = errors.New("nothing to refund")
	ErrExceedMaxCreate   = errors.New("envelope amount exceeds maximum allowed")
	ErrNotExpired        = errors.New("envelope not expired yet")
	ErrMathOverflow      = errors.New("math overflow")
	ErrInsufficientFunds = errors.New("insufficient funds in envelope")

	ErrUserStateNotFound   = errors.New("user state not found")
	ErrUserStateExists     = errors.New("user state already initialized")
	ErrEnvelopeNotFound    = errors.New("envelope not found")
	ErrInvalidPolicy       = errors.New("invalid envelope policy")
	ErrUnknownPolicy       = errors.New("unknown envelope policy")
	ErrInvalidExpiry       = errors.New("expiry hours must be positive")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrLedgerUnavailable   = errors.New("ledger unavailable")
)

// ErrorCode identifies an error to API clients.
type ErrorCode struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidOwner, ErrorCode{6000, "InvalidOwner"}},
	{ErrAlreadyClaimed, ErrorCode{6001, "AlreadyClaimed"}},
	{ErrNotAllowed, ErrorCode{6002, "NotAllowed"}},
	{ErrQuotaFull, ErrorCode{6003, "QuotaFull"}},
	{ErrExpired, ErrorCode{6004, "Expired"}},
	{ErrNothingToRefund, ErrorCode{6005, "NothingToRefund"}},
	{ErrExceedMaxCreate, ErrorCode{6006, "ExceedMaxCreate"}},
	{ErrNotExpired, ErrorCode{6007, "NotExpired"}},
	{ErrMathOverflow, ErrorCode{6008, "MathOverflow"}},
	{ErrInsufficientFunds, ErrorCode{6009, "InsufficientFunds"}},

	{ErrUserStateNotFound, ErrorCode{6100, "UserStateNotFound"}},
	{ErrUserStateExists, ErrorCode{6101, "UserStateExists"}},
	{ErrEnvelopeNotFound, ErrorCode{6102, "EnvelopeNotFound"}},
	{ErrInvalidPolicy, ErrorCode{6103, "InvalidPolicy"}},
	{ErrUnknownPolicy, ErrorCode{6104, "UnknownPolicy"}},
	{ErrInvalidExpiry, ErrorCode{6105, "InvalidExpiry"}},
	{ErrInvalidAmount, ErrorCode{6106, "InvalidAmount"}},
	{ErrInsufficientBalance, ErrorCode{6107, "InsufficientBalance"}},
	{ErrBalanceOverflow, ErrorCode{6108, "BalanceOverflow"}},
	{ErrLedgerUnavailable, ErrorCode{6109, "LedgerUnavailable"}},
}

// Code maps err to its client-facing code. The second return is false for errors
// outside the envelope taxonomy.
func Code(err error) (ErrorCode, bool) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, true
		}
	}
	return ErrorCode{}, false
}
