package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
	"github.com/malbeclabs/envelope/utils/pkg/logger"
)

const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
)

// Config is the API configuration, read from the environment.
type Config struct {
	ListenAddr        string        `env:"ENVELOPE_LISTEN_ADDR"         envDefault:":8080"`
	MetricsAddr       string        `env:"ENVELOPE_METRICS_ADDR"        envDefault:":9090"`
	ReadHeaderTimeout time.Duration `env:"ENVELOPE_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"ENVELOPE_SHUTDOWN_TIMEOUT"    envDefault:"10s"`

	Ledger    string `env:"ENVELOPE_LEDGER"     envDefault:"memory"`
	ProgramID string `env:"ENVELOPE_PROGRAM_ID"`
	Entropy   string `env:"ENVELOPE_ENTROPY"    envDefault:"timestamp"`

	AuthDisabled   bool          `env:"ENVELOPE_AUTH_DISABLED"`
	AuthMaxSkew    time.Duration `env:"ENVELOPE_AUTH_MAX_SKEW"    envDefault:"5m"`
	AirdropEnabled bool          `env:"ENVELOPE_AIRDROP_ENABLED"`

	ClaimRatePerMinute int `env:"ENVELOPE_CLAIM_RATE_PER_MINUTE" envDefault:"30"`
	ClaimRateBurst     int `env:"ENVELOPE_CLAIM_RATE_BURST"      envDefault:"5"`

	CORSOrigins []string `env:"ENVELOPE_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `env:"ENVELOPE_TRUST_PROXY_HEADERS"`

	LogFormat string `env:"ENVELOPE_LOG_FORMAT" envDefault:"text"`

	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`

	Postgres PostgresConfig `envPrefix:"POSTGRES_"`
}

// Load parses the environment into a validated Config.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom is Load with an explicit environment. A nil map reads the process
// environment.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	switch cfg.Ledger {
	case LedgerMemory:
	case LedgerPostgres:
		if err := cfg.Postgres.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown ledger %q (want %s or %s)", cfg.Ledger, LedgerMemory, LedgerPostgres)
	}
	if cfg.LogFormat != logger.FormatText && cfg.LogFormat != logger.FormatJSON {
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	if _, err := envelope.EntropyByName(cfg.Entropy); err != nil {
		return err
	}
	if _, err := cfg.ProgramPublicKey(); err != nil {
		return err
	}
	if cfg.ClaimRatePerMinute <= 0 || cfg.ClaimRateBurst <= 0 {
		return errors.New("claim rate limit and burst must be positive")
	}
	if cfg.AuthMaxSkew <= 0 {
		return errors.New("auth max skew must be positive")
	}
	return nil
}

// ProgramPublicKey returns the configured program id, or the default one.
func (cfg *Config) ProgramPublicKey() (solana.PublicKey, error) {
	if cfg.ProgramID == "" {
		return envelope.DefaultProgramID, nil
	}
	pk, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid ENVELOPE_PROGRAM_ID: %w", err)
	}
	return pk, nil
}
