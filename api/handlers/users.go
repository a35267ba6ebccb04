package handlers

import (
	"net/http"
)

// InitUserState allocates the caller's envelope counter.
func (h *Handlers) InitUserState(w http.ResponseWriter, r *http.Request) {
	us, err := h.svc.InitUserState(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, us)
}

func (h *Handlers) GetUserState(w http.ResponseWriter, r *http.Request) {
	owner, err := pathPublicKey(r, "owner")
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	us, err := h.svc.GetUserState(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, us)
}
