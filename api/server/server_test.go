package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/malbeclabs/envelope/api/handlers"
	"github.com/malbeclabs/envelope/api/server"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
	"github.com/malbeclabs/envelope/envelope/pkg/memledger"
	envtesting "github.com/malbeclabs/envelope/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, ready func(ctx context.Context) error) *server.Server {
	t.Helper()
	return newTestServerWith(t, false, handlers.PerMinute(30, 5), func(cfg *server.Config) {
		cfg.Ready = ready
	})
}

func newTestServerWith(t *testing.T, authDisabled bool, limiter *handlers.RateLimiter, configure func(*server.Config)) *server.Server {
	t.Helper()
	log := envtesting.NewLogger()
	svc, err := envelope.NewService(envelope.ServiceConfig{Logger: log, Ledger: memledger.New()})
	require.NoError(t, err)
	h, err := handlers.New(handlers.Config{
		Logger:       log,
		Service:      svc,
		Auth:         handlers.NewWalletAuth(log, nil, 5*time.Minute, authDisabled),
		ClaimLimiter: limiter,
	})
	require.NoError(t, err)

	cfg := server.Config{
		Logger:      log,
		ListenAddr:  "127.0.0.1:0",
		VersionInfo: server.VersionInfo{Version: "1.2.3", Commit: "abc123", Date: "2026-01-01"},
		Handlers:    h,
	}
	if configure != nil {
		configure(&cfg)
	}
	srv, err := server.New(cfg)
	require.NoError(t, err)
	return srv
}

func TestServer_Config(t *testing.T) {
	t.Parallel()

	_, err := server.New(server.Config{ListenAddr: ":0"})
	require.Error(t, err)

	_, err = server.New(server.Config{Logger: envtesting.NewLogger()})
	require.Error(t, err)
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	t.Run("healthz", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "ok\n", rec.Body.String())
	})

	t.Run("readyz ok", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, func(context.Context) error { return nil })
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz failing ledger", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, func(context.Context) error { return errors.New("connection refused") })
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("version", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var info server.VersionInfo
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
		require.Equal(t, "1.2.3", info.Version)
		require.Equal(t, "abc123", info.Commit)
	})

	t.Run("metrics", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "go_goroutines")
	})

	t.Run("cors preflight", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil)
		req := httptest.NewRequest(http.MethodOptions, "/v1/envelopes", nil)
		req.Header.Set("Origin", "https://wallet.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", handlers.HeaderWalletSignature)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_ClaimRateLimitClientAddress(t *testing.T) {
	t.Parallel()

	claimPath := "/v1/envelopes/" + envtesting.PublicKey(9).String() + "/claim"
	claim := func(srv *server.Server, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, claimPath, nil)
		req.RemoteAddr = "198.51.100.10:40000"
		req.Header.Set(handlers.HeaderWalletPubkey, envtesting.PublicKey(2).String())
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("forwarded headers ignored by default", func(t *testing.T) {
		t.Parallel()
		srv := newTestServerWith(t, true, handlers.PerMinute(1, 1), nil)
		require.Equal(t, http.StatusNotFound, claim(srv, "203.0.113.1"))
		require.Equal(t, http.StatusTooManyRequests, claim(srv, "203.0.113.2"))
	})

	t.Run("forwarded headers honored behind a trusted proxy", func(t *testing.T) {
		t.Parallel()
		srv := newTestServerWith(t, true, handlers.PerMinute(1, 1), func(cfg *server.Config) {
			cfg.TrustProxyHeaders = true
		})
		require.Equal(t, http.StatusNotFound, claim(srv, "203.0.113.1"))
		require.Equal(t, http.StatusNotFound, claim(srv, "203.0.113.2"))
		require.Equal(t, http.StatusTooManyRequests, claim(srv, "203.0.113.1"))
	})
}

func TestServer_ServeAndShutdown(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
