package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ledgerTables lists the ledger tables, children first.
var ledgerTables = []string{"envelope_claims", "envelopes", "user_states", "accounts"}

type ResetConfig struct {
	DryRun      bool
	SkipConfirm bool
	In          io.Reader
	Out         io.Writer
}

// ResetLedger deletes every account, user state and envelope. The schema and
// migration history are kept.
func ResetLedger(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool, cfg ResetConfig) error {
	counts := make(map[string]int64, len(ledgerTables))
	var total int64
	for _, table := range ledgerTables {
		var n int64
		query := fmt.Sprintf("SELECT count(*) FROM %s", pgx.Identifier{table}.Sanitize())
		if err := pool.QueryRow(ctx, query).Scan(&n); err != nil {
			return fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
		total += n
	}

	if total == 0 {
		fmt.Fprintln(cfg.Out, "Ledger is already empty")
		return nil
	}

	fmt.Fprintln(cfg.Out, "WARNING: This will DELETE all rows from the ledger tables:")
	fmt.Fprintln(cfg.Out)
	for _, table := range ledgerTables {
		fmt.Fprintf(cfg.Out, "  - %s (%d rows)\n", table, counts[table])
	}

	if cfg.DryRun {
		fmt.Fprintln(cfg.Out, "\n[DRY RUN] Would truncate the above tables")
		return nil
	}

	if !cfg.SkipConfirm {
		fmt.Fprintf(cfg.Out, "\nThis is a DESTRUCTIVE operation that cannot be undone!\n")
		fmt.Fprintf(cfg.Out, "Type 'yes' to confirm: ")

		response, err := bufio.NewReader(cfg.In).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Fprintf(cfg.Out, "\nConfirmation failed. Operation cancelled.\n")
			return nil
		}
		fmt.Fprintln(cfg.Out)
	}

	idents := make([]string, 0, len(ledgerTables))
	for _, table := range ledgerTables {
		idents = append(idents, pgx.Identifier{table}.Sanitize())
	}
	if _, err := pool.Exec(ctx, "TRUNCATE "+strings.Join(idents, ", ")); err != nil {
		return fmt.Errorf("failed to truncate ledger tables: %w", err)
	}

	log.Info("admin: ledger reset", "rows", total)
	fmt.Fprintf(cfg.Out, "Successfully deleted %d row(s) from %d table(s)\n", total, len(ledgerTables))
	return nil
}
