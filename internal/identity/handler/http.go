package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"chabaqa/backend/internal/authapi"
	"chabaqa/backend/internal/envelope"
	"chabaqa/backend/internal/identity/service"
	"chabaqa/backend/internal/server/middleware"
	userdomain "chabaqa/backend/internal/user/domain"
)

// maxBodyBytes bounds auth request bodies.
const maxBodyBytes = 1 << 16

// AuthHandler serves the /auth and /admin/users endpoints over HTTP/JSON.
type AuthHandler struct {
	svc *service.AuthService
}

// NewAuthHandler returns a handler backed by svc. svc may be nil; then every endpoint returns 503.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) available(w http.ResponseWriter) bool {
	if h.svc == nil {
		envelope.WriteError(w, http.StatusServiceUnavailable, envelope.CodeUnavailable, "auth service not configured", nil)
		return false
	}
	return true
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req authapi.RegisterRequest
	if !h.available(w) || !decode(w, r, &req) {
		return
	}
	u, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name, userdomain.Role(strings.TrimSpace(req.Role)))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	envelope.WriteData(w, http.StatusCreated, ToUser(u))
}

// Login handles POST /auth/login. A 2FA user gets requires2FA=true and no tokens.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req authapi.LoginRequest
	if !h.available(w) || !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.RequiresTwoFactor {
		exp := res.ChallengeExpiresAt
		envelope.WriteData(w, http.StatusOK, authapi.LoginResponse{RequiresTwoFactor: true, ChallengeExpiresAt: &exp})
		return
	}
	t := res.Tokens
	envelope.WriteData(w, http.StatusOK, authapi.LoginResponse{
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		ExpiresAt:        &t.ExpiresAt,
		RefreshExpiresAt: &t.RefreshExpiresAt,
		User:             ToUser(t.User),
	})
}

// VerifyTwoFactor handles POST /auth/verify-2fa.
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req authapi.VerifyTwoFactorRequest
	if !h.available(w) || !decode(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyTwoFactor(r.Context(), req.Email, req.VerificationCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	envelope.WriteData(w, http.StatusOK, tokenResponse(res))
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req authapi.RefreshRequest
	if !h.available(w) || !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Refresh(r.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	envelope.WriteData(w, http.StatusOK, tokenResponse(res))
}

// Logout handles POST /auth/logout. The body is optional; without a refresh token the
// session of the presented access token is revoked. Always 200 unless storage fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req authapi.LogoutRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if err := h.svc.Logout(r.Context(), strings.TrimSpace(req.RefreshToken)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	envelope.WriteData(w, http.StatusOK, authapi.LogoutResponse{LoggedOut: true})
}

// Me handles GET /auth/me. Requires an authenticated caller.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		envelope.WriteError(w, http.StatusUnauthorized, envelope.CodeUnauthenticated, "authentication required", nil)
		return
	}
	u, err := h.svc.Me(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			envelope.WriteError(w, http.StatusUnauthorized, envelope.CodeUnauthenticated, "authentication required", nil)
			return
		}
		writeServiceError(w, r, err)
		return
	}
	envelope.WriteData(w, http.StatusOK, ToUser(u))
}

// SetTwoFactor handles PUT /auth/two-factor for the caller.
func (h *AuthHandler) SetTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req authapi.TwoFactorRequest
	if !h.available(w) || !decode(w, r, &req) {
		return
	}
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		envelope.WriteError(w, http.StatusUnauthorized, envelope.CodeUnauthenticated, "authentication required", nil)
		return
	}
	u, err := h.svc.SetTwoFactor(r.Context(), userID, req.Enabled)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	envelope.WriteData(w, http.StatusOK, ToUser(u))
}

// ChangeRole handles PUT /admin/users/{id}/role. Callers must already pass rbac.Require(admin).
func (h *AuthHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req authapi.ChangeRoleRequest
	if !h.available(w) || !decode(w, r, &req) {
		return
	}
	actorID, _ := middleware.GetUserID(r.Context())
	u, err := h.svc.ChangeRole(r.Context(), actorID, chi.URLParam(r, "id"), userdomain.Role(strings.TrimSpace(req.Role)))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	envelope.WriteData(w, http.StatusOK, ToUser(u))
}

// ToUser converts a domain user to its wire form.
func ToUser(u *userdomain.User) *authapi.User {
	if u == nil {
		return nil
	}
	return &authapi.User{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             string(u.Role),
		TwoFactorEnabled: u.TwoFactorEnabled,
		CreatedAt:        u.CreatedAt.UTC().Truncate(time.Second),
	}
}

func tokenResponse(res *service.AuthResult) authapi.TokenResponse {
	return authapi.TokenResponse{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		ExpiresAt:        res.ExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
		User:             ToUser(res.User),
	}
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		envelope.WriteError(w, http.StatusBadRequest, envelope.CodeValidation, "request body must be valid JSON", nil)
		return false
	}
	return true
}

// writeServiceError maps service sentinels to HTTP statuses and envelope codes. Unknown errors are logged and hidden.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		envelope.WriteError(w, http.StatusUnprocessableEntity, envelope.CodeValidation, "Please correct the highlighted fields", ve.Fields)
	case errors.Is(err, service.ErrInvalidCredentials):
		envelope.WriteError(w, http.StatusUnauthorized, envelope.CodeInvalidCredentials, "Invalid email or password", nil)
	case errors.Is(err, service.ErrInvalidCode):
		envelope.WriteError(w, http.StatusUnauthorized, envelope.CodeInvalidCode, "Invalid or expired verification code", nil)
	case errors.Is(err, service.ErrTooManyAttempts):
		envelope.WriteError(w, http.StatusTooManyRequests, envelope.CodeRateLimited, "Too many invalid codes, please sign in again", nil)
	case errors.Is(err, service.ErrInvalidRefreshToken), errors.Is(err, service.ErrRefreshTokenReuse):
		envelope.WriteError(w, http.StatusUnauthorized, envelope.CodeUnauthenticated, "Session expired, please sign in again", nil)
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		envelope.WriteError(w, http.StatusConflict, envelope.CodeConflict, "An account with this email already exists", map[string]string{"email": "already registered"})
	case errors.Is(err, service.ErrUserNotFound):
		envelope.WriteError(w, http.StatusNotFound, envelope.CodeNotFound, "User not found", nil)
	case errors.Is(err, service.ErrInvalidRole):
		envelope.WriteError(w, http.StatusUnprocessableEntity, envelope.CodeValidation, "Invalid role", map[string]string{"role": err.Error()})
	case errors.Is(err, service.ErrCodeDelivery):
		envelope.WriteError(w, http.StatusServiceUnavailable, envelope.CodeUnavailable, "Could not send verification code, please try again", nil)
	default:
		slog.ErrorContext(r.Context(), "auth handler: unexpected error", "path", r.URL.Path, "error", err)
		envelope.WriteError(w, http.StatusInternalServerError, envelope.CodeInternal, "Something went wrong", nil)
	}
}
