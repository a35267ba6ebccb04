// Package handlers serves the envelope service over JSON/HTTP.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
)

type Config struct {
	Logger         *slog.Logger
	Service        *envelope.Service
	Auth           *WalletAuth
	ClaimLimiter   *RateLimiter
	AirdropEnabled bool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Service == nil {
		return errors.New("service is required")
	}
	if cfg.Auth == nil {
		return errors.New("wallet auth is required")
	}
	if cfg.ClaimLimiter == nil {
		return errors.New("claim rate limiter is required")
	}
	return nil
}

type Handlers struct {
	log *slog.Logger
	svc *envelope.Service
	cfg Config
}

func New(cfg Config) (*Handlers, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Handlers{
		log: cfg.Logger,
		svc: cfg.Service,
		cfg: cfg,
	}, nil
}

// Mount registers the /v1 routes on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/users/{owner}", h.GetUserState)
		r.Get("/users/{owner}/envelopes", h.ListEnvelopes)
		r.Get("/users/{owner}/envelopes/{id}", h.GetEnvelopeByID)
		r.Get("/envelopes/{address}", h.GetEnvelope)
		r.Get("/accounts/{address}", h.GetAccount)
		if h.cfg.AirdropEnabled {
			r.Post("/accounts/{address}/airdrop", h.Airdrop)
		}

		r.Group(func(r chi.Router) {
			r.Use(h.cfg.Auth.Middleware)
			r.Post("/users/init", h.InitUserState)
			r.Post("/envelopes", h.CreateEnvelope)
			r.With(RateLimitMiddleware(h.cfg.ClaimLimiter)).Post("/envelopes/{address}/claim", h.Claim)
			r.Post("/envelopes/{address}/refund", h.Refund)
		})
	})
}

func pathPublicKey(r *http.Request, name string) (solana.PublicKey, error) {
	raw := chi.URLParam(r, name)
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return pk, nil
}

// caller returns the authenticated wallet. Routes behind WalletAuth always have one.
func caller(r *http.Request) solana.PublicKey {
	pk, _ := CallerFromContext(r.Context())
	return pk
}
