package pgledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
)

// SQLSTATE codes the ledger reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeNumericOutOfRange    = "22003"
	codeUniqueViolation      = "23505"
)

var connectivityPatterns = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"no such host",
	"dial tcp",
	"dial unix",
	"eof",
	"broken pipe",
	"network is unreachable",
	"no route to host",
	"i/o timeout",
	"pool is closed",
	"conn closed",
}

// classify maps driver errors onto the envelope taxonomy. Envelope errors pass
// through untouched; transient failures are wrapped in ErrLedgerUnavailable so
// Atomic can retry them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := envelope.Code(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", envelope.ErrLedgerUnavailable, err)
		case codeNumericOutOfRange:
			return fmt.Errorf("%w: %w", envelope.ErrBalanceOverflow, err)
		}
		return err
	}

	if isConnectivity(err) {
		return fmt.Errorf("%w: %w", envelope.ErrLedgerUnavailable, err)
	}
	return err
}

func isConnectivity(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range connectivityPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isRetryable(err error) bool {
	return errors.Is(err, envelope.ErrLedgerUnavailable)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
