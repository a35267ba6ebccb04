package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/malbeclabs/envelope/api/config"
	"github.com/malbeclabs/envelope/api/handlers"
	"github.com/malbeclabs/envelope/api/metrics"
	"github.com/malbeclabs/envelope/api/server"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
	"github.com/malbeclabs/envelope/envelope/pkg/memledger"
	"github.com/malbeclabs/envelope/envelope/pkg/pgledger"
	"github.com/malbeclabs/envelope/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	envFileFlag := flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	flag.Parse()

	// Variables already set in the environment win over the file.
	if err := godotenv.Load(*envFileFlag); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", *envFileFlag, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewWithOptions(logger.Options{Verbose: *verboseFlag, Format: cfg.LogFormat})

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			Release:     version,
		}); err != nil {
			return fmt.Errorf("failed to init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry enabled", "environment", cfg.SentryEnvironment)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ledger, ready, closeLedger, err := openLedger(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	entropy, err := envelope.EntropyByName(cfg.Entropy)
	if err != nil {
		return err
	}
	programID, err := cfg.ProgramPublicKey()
	if err != nil {
		return err
	}
	clock := clockwork.NewRealClock()

	svc, err := envelope.NewService(envelope.ServiceConfig{
		Logger:    log,
		Clock:     clock,
		Ledger:    ledger,
		ProgramID: programID,
		Entropy:   entropy,
	})
	if err != nil {
		return err
	}

	if cfg.AuthDisabled {
		log.Warn("wallet signature verification is disabled; callers are trusted by pubkey header")
	}
	claimLimiter := handlers.PerMinute(cfg.ClaimRatePerMinute, cfg.ClaimRateBurst)
	h, err := handlers.New(handlers.Config{
		Logger:         log,
		Service:        svc,
		Auth:           handlers.NewWalletAuth(log, clock, cfg.AuthMaxSkew, cfg.AuthDisabled),
		ClaimLimiter:   claimLimiter,
		AirdropEnabled: cfg.AirdropEnabled,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Logger:            log,
		ListenAddr:        cfg.ListenAddr,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		VersionInfo:       server.VersionInfo{Version: version, Commit: commit, Date: date},
		CORSOrigins:       cfg.CORSOrigins,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Handlers:          h,
		Ready:             ready,
	})
	if err != nil {
		return err
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
	log.Info("envelope api starting",
		"version", version,
		"ledger", cfg.Ledger,
		"program_id", programID,
		"entropy", cfg.Entropy,
		"airdrop", cfg.AirdropEnabled,
		"trust_proxy_headers", cfg.TrustProxyHeaders)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		claimLimiter.Run(gctx)
		return nil
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, log, cfg.MetricsAddr) })
	}
	return g.Wait()
}

// openLedger returns the configured ledger, its readiness probe and a close func.
func openLedger(ctx context.Context, log *slog.Logger, cfg config.Config) (envelope.Ledger, func(context.Context) error, func(), error) {
	switch cfg.Ledger {
	case config.LedgerPostgres:
		pool, err := config.OpenPostgres(ctx, log, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		ledger, err := pgledger.New(pgledger.Config{Logger: log, Pool: pool})
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return ledger, ledger.Ping, pool.Close, nil
	default:
		log.Warn("using in-memory ledger; state is lost on restart")
		return memledger.New(), nil, func() {}, nil
	}
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.Info("prometheus metrics server listening", "address", listener.Addr().String())
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
