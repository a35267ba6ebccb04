package admin

import (
	"log/slog"

	"github.com/malbeclabs/envelope/api/config"
	"github.com/malbeclabs/envelope/envelope/pkg/pgledger"
)

// PgMigrateUp runs all pending ledger migrations.
func PgMigrateUp(log *slog.Logger, cfg config.PostgresConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return pgledger.MigrateUp(log, cfg.ConnString())
}

// PgMigrateDown rolls back the last ledger migration.
func PgMigrateDown(log *slog.Logger, cfg config.PostgresConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return pgledger.MigrateDown(log, cfg.ConnString())
}

// PgMigrateStatus prints the status of every ledger migration.
func PgMigrateStatus(log *slog.Logger, cfg config.PostgresConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return pgledger.MigrateStatus(log, cfg.ConnString())
}
