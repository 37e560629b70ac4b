// Package handler serves the dev-only code lookup (GET /dev/2fa/code?email=).
package handler

import (
	"net/http"
	"strings"

	"chabaqa/backend/internal/devotp"
	"chabaqa/backend/internal/envelope"
)

const devOTPNote = "DEV MODE ONLY"

// Handler reads codes from the dev store. Only mounted when dev OTP is enabled and not production.
type Handler struct {
	store devotp.Store
}

// NewHandler returns a handler that reads codes from the given store.
func NewHandler(store devotp.Store) *Handler {
	return &Handler{store: store}
}

type codeResponse struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	Note  string `json:"note"`
}

// GetCode returns the pending code for ?email=. 400 without email, 404 if missing or expired.
func (h *Handler) GetCode(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if email == "" {
		envelope.WriteError(w, http.StatusBadRequest, envelope.CodeValidation, "email is required", map[string]string{"email": "required"})
		return
	}
	code, ok := h.store.Get(r.Context(), email)
	if !ok {
		envelope.WriteError(w, http.StatusNotFound, envelope.CodeNotFound, "code not found or expired", nil)
		return
	}
	envelope.WriteData(w, http.StatusOK, codeResponse{Email: email, Code: code, Note: devOTPNote})
}
