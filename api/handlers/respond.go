package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
)

// maxBodyBytes bounds request bodies; every request here is a small JSON object.
const maxBodyBytes = 64 << 10

type errorBody struct {
	Code       int    `json:"code"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

type errorResponse struct {
	RequestID string    `json:"request_id,omitempty"`
	Error     errorBody `json:"error"`
}

type requestIDKey struct{}

// NewRequestID returns a fresh request identifier.
func NewRequestID() string { return "req_" + uuid.NewString() }

// RequestID tags each request with an id, reusing a client-supplied
// X-Request-ID when present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestIDFromContext returns the id set by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps the envelope error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, envelope.ErrInvalidOwner),
		errors.Is(err, envelope.ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, envelope.ErrAlreadyClaimed),
		errors.Is(err, envelope.ErrQuotaFull),
		errors.Is(err, envelope.ErrUserStateExists),
		errors.Is(err, envelope.ErrExpired),
		errors.Is(err, envelope.ErrNotExpired),
		errors.Is(err, envelope.ErrNothingToRefund),
		errors.Is(err, envelope.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, envelope.ErrMathOverflow),
		errors.Is(err, envelope.ErrExceedMaxCreate),
		errors.Is(err, envelope.ErrInvalidPolicy),
		errors.Is(err, envelope.ErrUnknownPolicy),
		errors.Is(err, envelope.ErrInvalidExpiry),
		errors.Is(err, envelope.ErrInvalidAmount),
		errors.Is(err, envelope.ErrBalanceOverflow):
		return http.StatusBadRequest
	case errors.Is(err, envelope.ErrUserStateNotFound),
		errors.Is(err, envelope.ErrEnvelopeNotFound):
		return http.StatusNotFound
	case errors.Is(err, envelope.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, envelope.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the API error shape. Server-side failures are
// reported to Sentry and their message is not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Code: status, Name: http.StatusText(status), Message: err.Error()}
	if code, ok := envelope.Code(err); ok {
		body.Code = code.Code
		body.Name = code.Name
	}
	if status >= http.StatusInternalServerError {
		captureError(r, err)
		if status == http.StatusInternalServerError {
			body.Message = "internal error"
		}
	}
	writeJSON(w, status, errorResponse{RequestID: RequestIDFromContext(r.Context()), Error: body})
}

// writeBadRequest reports a malformed request that never reached the service.
func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		RequestID: RequestIDFromContext(r.Context()),
		Error: errorBody{
			Code:    http.StatusBadRequest,
			Name:    "BadRequest",
			Message: err.Error(),
		},
	})
}

func captureError(r *http.Request, err error) {
	hub := sentry.GetHubFromContext(r.Context())
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("route", r.Method+" "+r.URL.Path)
		if id := RequestIDFromContext(r.Context()); id != "" {
			scope.SetTag("request_id", id)
		}
		hub.CaptureException(err)
	})
}
