package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/malbeclabs/envelope/envelope/pkg/envelope"
)

// CreateEnvelopeRequest is the body of POST /v1/envelopes. Which amount fields
// apply depends on EnvelopeType.
type CreateEnvelopeRequest struct {
	EnvelopeType   string `json:"envelope_type"`
	ExpiryHours    uint64 `json:"expiry_hours"`
	AllowedAddress string `json:"allowed_address,omitempty"` // direct_fixed
	Amount         uint64 `json:"amount,omitempty"`          // direct_fixed
	TotalUsers     uint64 `json:"total_users,omitempty"`     // group_fixed, group_random
	AmountPerUser  uint64 `json:"amount_per_user,omitempty"` // group_fixed
	TotalAmount    uint64 `json:"total_amount,omitempty"`    // group_random
	AutoInit       bool   `json:"auto_init,omitempty"`
}

func (req CreateEnvelopeRequest) policy() (envelope.Policy, error) {
	switch envelope.PolicyKind(req.EnvelopeType) {
	case envelope.PolicyKindDirectFixed:
		if req.AllowedAddress == "" {
			return nil, fmt.Errorf("%w: allowed_address is required", envelope.ErrInvalidPolicy)
		}
		allowed, err := solana.PublicKeyFromBase58(req.AllowedAddress)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid allowed_address: %w", envelope.ErrInvalidPolicy, err)
		}
		return envelope.DirectFixed{AllowedClaimant: allowed, Amount: req.Amount}, nil
	case envelope.PolicyKindGroupFixed:
		return envelope.GroupFixed{TotalSlots: req.TotalUsers, AmountPerClaimant: req.AmountPerUser}, nil
	case envelope.PolicyKindGroupRandom:
		return envelope.GroupRandom{TotalSlots: req.TotalUsers, TotalAmount: req.TotalAmount}, nil
	default:
		return nil, fmt.Errorf("%w: %q", envelope.ErrUnknownPolicy, req.EnvelopeType)
	}
}

// PayoutResponse is returned by claim and refund.
type PayoutResponse struct {
	Amount   uint64        `json:"amount"`
	Envelope envelope.Info `json:"envelope"`
}

func (h *Handlers) CreateEnvelope(w http.ResponseWriter, r *http.Request) {
	var req CreateEnvelopeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	policy, err := req.policy()
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := h.svc.Create(r.Context(), caller(r), envelope.CreateParams{
		Policy:      policy,
		ExpiryHours: req.ExpiryHours,
		AutoInit:    req.AutoInit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope.NewInfo(e, h.svc.Now()))
}

func (h *Handlers) GetEnvelope(w http.ResponseWriter, r *http.Request) {
	addr, err := pathPublicKey(r, "address")
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	info, err := h.svc.Info(r.Context(), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handlers) GetEnvelopeByID(w http.ResponseWriter, r *http.Request) {
	owner, err := pathPublicKey(r, "owner")
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, r, fmt.Errorf("invalid envelope id: %w", err))
		return
	}
	e, err := h.svc.GetEnvelopeByID(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope.NewInfo(e, h.svc.Now()))
}

// ListEnvelopes returns owner's envelopes, newest first.
func (h *Handlers) ListEnvelopes(w http.ResponseWriter, r *http.Request) {
	owner, err := pathPublicKey(r, "owner")
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	page, err := ParsePage(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	envelopes, total, err := h.svc.ListEnvelopes(r.Context(), owner, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := h.svc.Now()
	items := make([]envelope.Info, 0, len(envelopes))
	for _, e := range envelopes {
		items = append(items, envelope.NewInfo(e, now))
	}
	writeJSON(w, http.StatusOK, NewPaginatedResponse(items, total, page))
}

func (h *Handlers) Claim(w http.ResponseWriter, r *http.Request) {
	addr, err := pathPublicKey(r, "address")
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	res, err := h.svc.Claim(r.Context(), caller(r), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PayoutResponse{
		Amount:   res.Amount,
		Envelope: envelope.NewInfo(res.Envelope, h.svc.Now()),
	})
}

func (h *Handlers) Refund(w http.ResponseWriter, r *http.Request) {
	addr, err := pathPublicKey(r, "address")
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	res, err := h.svc.Refund(r.Context(), caller(r), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PayoutResponse{
		Amount:   res.Amount,
		Envelope: envelope.NewInfo(res.Envelope, h.svc.Now()),
	})
}
