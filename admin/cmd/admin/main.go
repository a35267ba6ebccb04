package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/envelope/admin/internal/admin"
	"github.com/malbeclabs/envelope/api/config"
	"github.com/malbeclabs/envelope/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	envFileFlag := flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")

	// PostgreSQL configuration; flags override POSTGRES_* env vars
	pgHostFlag := flag.String("pg-host", "", "PostgreSQL host (or set POSTGRES_HOST env var)")
	pgPortFlag := flag.String("pg-port", "", "PostgreSQL port (or set POSTGRES_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "", "PostgreSQL database (or set POSTGRES_DB env var)")
	pgUsernameFlag := flag.String("pg-username", "", "PostgreSQL username (or set POSTGRES_USER env var)")
	pgPasswordFlag := flag.String("pg-password", "", "PostgreSQL password (or set POSTGRES_PASSWORD env var)")

	// Commands
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run ledger database migrations using goose")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last ledger database migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show ledger database migration status")
	airdropFlag := flag.String("airdrop", "", "Credit lamports to this address (requires --amount)")
	amountFlag := flag.Uint64("amount", 0, "Amount in lamports for --airdrop")
	showEnvelopeFlag := flag.String("show-envelope", "", "Print the envelope at this address as JSON")
	resetLedgerFlag := flag.Bool("reset-ledger", false, "Delete all accounts, user states and envelopes")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if err := godotenv.Load(*envFileFlag); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", *envFileFlag, err)
	}

	var pgCfg config.PostgresConfig
	if err := env.ParseWithOptions(&pgCfg, env.Options{Prefix: "POSTGRES_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	for flagValue, target := range map[*string]*string{
		pgHostFlag:     &pgCfg.Host,
		pgPortFlag:     &pgCfg.Port,
		pgDatabaseFlag: &pgCfg.Database,
		pgUsernameFlag: &pgCfg.Username,
		pgPasswordFlag: &pgCfg.Password,
	} {
		if *flagValue != "" {
			*target = *flagValue
		}
	}

	ctx := context.Background()

	switch {
	case *pgMigrateFlag:
		return admin.PgMigrateUp(log, pgCfg)
	case *pgMigrateDownFlag:
		return admin.PgMigrateDown(log, pgCfg)
	case *pgMigrateStatusFlag:
		return admin.PgMigrateStatus(log, pgCfg)
	}

	if *airdropFlag == "" && *showEnvelopeFlag == "" && !*resetLedgerFlag {
		flag.Usage()
		return nil
	}

	if err := pgCfg.Validate(); err != nil {
		return err
	}
	pool, err := config.OpenPostgres(ctx, log, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	switch {
	case *airdropFlag != "":
		if *amountFlag == 0 {
			return fmt.Errorf("--amount is required for --airdrop")
		}
		return admin.Airdrop(ctx, log, pool, os.Stdout, *airdropFlag, *amountFlag)
	case *showEnvelopeFlag != "":
		return admin.ShowEnvelope(ctx, log, pool, os.Stdout, *showEnvelopeFlag)
	default:
		return admin.ResetLedger(ctx, log, pool, admin.ResetConfig{
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
			In:          os.Stdin,
			Out:         os.Stdout,
		})
	}
}
