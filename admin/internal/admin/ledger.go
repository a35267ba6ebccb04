package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
	"github.com/malbeclabs/envelope/envelope/pkg/pgledger"
)

func newService(log *slog.Logger, pool *pgxpool.Pool) (*envelope.Service, error) {
	ledger, err := pgledger.New(pgledger.Config{Logger: log, Pool: pool})
	if err != nil {
		return nil, err
	}
	return envelope.NewService(envelope.ServiceConfig{Logger: log, Ledger: ledger})
}

// Airdrop credits address with amount lamports and prints the new balance.
func Airdrop(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool, out io.Writer, address string, amount uint64) error {
	addr, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	svc, err := newService(log, pool)
	if err != nil {
		return err
	}
	balance, err := svc.Airdrop(ctx, addr, amount)
	if err != nil {
		return fmt.Errorf("airdrop failed: %w", err)
	}
	fmt.Fprintf(out, "Credited %d lamports to %s (balance %d)\n", amount, addr, balance)
	return nil
}

// ShowEnvelope prints the envelope at address as JSON.
func ShowEnvelope(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool, out io.Writer, address string) error {
	addr, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	svc, err := newService(log, pool)
	if err != nil {
		return err
	}
	info, err := svc.Info(ctx, addr)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
