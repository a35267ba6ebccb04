package handlers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/envelope/api/metrics"
	"github.com/mr-tron/base58"
)

const (
	HeaderWalletPubkey    = "X-Wallet-Pubkey"
	HeaderWalletTimestamp = "X-Wallet-Timestamp"
	HeaderWalletSignature = "X-Wallet-Signature"
)

type callerKey struct{}

// CallerFromContext returns the wallet authenticated by WalletAuth.
func CallerFromContext(ctx context.Context) (solana.PublicKey, bool) {
	pk, ok := ctx.Value(callerKey{}).(solana.PublicKey)
	return pk, ok
}

// WalletAuth authenticates requests signed by a Solana wallet. The signature
// covers the method, path, timestamp and body hash, so a captured request can
// only be replayed against the same route within the skew window.
type WalletAuth struct {
	log      *slog.Logger
	clock    clockwork.Clock
	maxSkew  time.Duration
	disabled bool
}

func NewWalletAuth(log *slog.Logger, clock clockwork.Clock, maxSkew time.Duration, disabled bool) *WalletAuth {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WalletAuth{log: log, clock: clock, maxSkew: maxSkew, disabled: disabled}
}

func (a *WalletAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, reason, err := a.authenticate(w, r)
		if err != nil {
			metrics.RecordAuthFailure(reason)
			a.log.Debug("auth: rejected wallet request", "reason", reason, "path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				RequestID: RequestIDFromContext(r.Context()),
				Error: errorBody{
					Code:    http.StatusUnauthorized,
					Name:    "Unauthorized",
					Message: err.Error(),
				},
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func (a *WalletAuth) authenticate(w http.ResponseWriter, r *http.Request) (solana.PublicKey, string, error) {
	pubkeyHeader := r.Header.Get(HeaderWalletPubkey)
	if pubkeyHeader == "" {
		return solana.PublicKey{}, "missing_header", fmt.Errorf("%s header is required", HeaderWalletPubkey)
	}
	pubkey, err := solana.PublicKeyFromBase58(pubkeyHeader)
	if err != nil {
		return solana.PublicKey{}, "bad_pubkey", fmt.Errorf("invalid %s: %w", HeaderWalletPubkey, err)
	}
	if a.disabled {
		return pubkey, "", nil
	}

	tsHeader := r.Header.Get(HeaderWalletTimestamp)
	sigHeader := r.Header.Get(HeaderWalletSignature)
	if tsHeader == "" || sigHeader == "" {
		return solana.PublicKey{}, "missing_header", fmt.Errorf("%s and %s headers are required", HeaderWalletTimestamp, HeaderWalletSignature)
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return solana.PublicKey{}, "bad_timestamp", fmt.Errorf("invalid %s: %w", HeaderWalletTimestamp, err)
	}
	skew := a.clock.Now().Sub(time.Unix(ts, 0))
	if skew > a.maxSkew || skew < -a.maxSkew {
		return solana.PublicKey{}, "bad_timestamp", errors.New("request timestamp outside the allowed window")
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return solana.PublicKey{}, "bad_body", fmt.Errorf("failed to read body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	message := BuildSignedMessage(r.Method, r.URL.Path, ts, body)
	valid, err := verifyEd25519Signature(pubkey, []byte(message), sigHeader)
	if err != nil {
		return solana.PublicKey{}, "bad_signature", err
	}
	if !valid {
		return solana.PublicKey{}, "bad_signature", errors.New("signature verification failed")
	}
	return pubkey, "", nil
}

// BuildSignedMessage returns the text a wallet signs to authorize a request.
func BuildSignedMessage(method, path string, timestamp int64, body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("envelope-api\n%s %s\n%d\n%s", method, path, timestamp, hex.EncodeToString(sum[:]))
}

// SignRequest sets the wallet auth headers on req for body, signed with key.
func SignRequest(req *http.Request, key solana.PrivateKey, body []byte, now time.Time) error {
	ts := now.Unix()
	sig, err := key.Sign([]byte(BuildSignedMessage(req.Method, req.URL.Path, ts, body)))
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	req.Header.Set(HeaderWalletPubkey, key.PublicKey().String())
	req.Header.Set(HeaderWalletTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderWalletSignature, sig.String())
	return nil
}

// verifyEd25519Signature verifies a base58 Ed25519 signature made by pubkey.
func verifyEd25519Signature(pubkey solana.PublicKey, message []byte, signatureBase58 string) (bool, error) {
	signatureBytes, err := base58.Decode(signatureBase58)
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(signatureBytes) != ed25519.SignatureSize {
		return false, fmt.Errorf("invalid signature size: expected %d, got %d", ed25519.SignatureSize, len(signatureBytes))
	}

	var sig solana.Signature
	copy(sig[:], signatureBytes)
	return sig.Verify(pubkey, message), nil
}
