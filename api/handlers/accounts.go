package handlers

import (
	"net/http"
)

type AccountResponse struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

type AirdropRequest struct {
	Amount uint64 `json:"amount"`
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := pathPublicKey(r, "address")
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	balance, err := h.svc.Balance(r.Context(), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Address: addr.String(), Balance: balance})
}

// Airdrop credits an account on development ledgers. It is only mounted when
// airdrops are enabled in the config.
func (h *Handlers) Airdrop(w http.ResponseWriter, r *http.Request) {
	addr, err := pathPublicKey(r, "address")
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req AirdropRequest
	if err := readJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	balance, err := h.svc.Airdrop(r.Context(), addr, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Address: addr.String(), Balance: balance})
}
