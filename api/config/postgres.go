package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/malbeclabs/envelope/envelope/pkg/pgledger"
)

// PostgresConfig holds the PostgreSQL configuration.
type PostgresConfig struct {
	Host          string `env:"HOST"           envDefault:"localhost"`
	Port          string `env:"PORT"           envDefault:"5432"`
	Database      string `env:"DB"`
	Username      string `env:"USER"`
	Password      string `env:"PASSWORD"`
	SSLMode       string `env:"SSLMODE"        envDefault:"disable"`
	RunMigrations bool   `env:"RUN_MIGRATIONS"`
}

func (cfg *PostgresConfig) Validate() error {
	if cfg.Database == "" {
		return errors.New("POSTGRES_DB is required")
	}
	if cfg.Username == "" {
		return errors.New("POSTGRES_USER is required")
	}
	if cfg.Password == "" {
		return errors.New("POSTGRES_PASSWORD is required")
	}
	return nil
}

// ConnString renders the configuration as a postgres:// URL.
func (cfg *PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Database,
		RawQuery: "sslmode=" + url.QueryEscape(cfg.SSLMode),
	}
	return u.String()
}

// OpenPostgres connects a pool and, when enabled, applies pending migrations.
func OpenPostgres(ctx context.Context, log *slog.Logger, cfg PostgresConfig) (*pgxpool.Pool, error) {
	connStr := cfg.ConnString()

	log.Info("connecting to PostgreSQL", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database, "username", cfg.Username)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	log.Info("connected to PostgreSQL")

	if cfg.RunMigrations {
		if err := pgledger.MigrateUp(log, connStr); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}
