// Package signin implements the web app's login, second-factor, logout, and refresh actions.
// Tokens never reach page code: they are moved between the backend and HttpOnly cookies here.
package signin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chabaqa/backend/internal/authapi"
	"chabaqa/backend/internal/authclient"
	"chabaqa/backend/internal/tokenstore"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidCode        = "Invalid or expired verification code"
	msgConnection         = "Connection error, please try again"
	msgFixFields          = "Please correct the highlighted fields"
	msgSignedOut          = "Your session has expired, please sign in again"
)

// Status is the state a form lands in after an action.
type Status string

const (
	StatusAuthenticated Status = "authenticated"
	StatusAwaitingCode  Status = "awaiting_code"
	StatusInvalid       Status = "invalid"
	StatusRejected      Status = "rejected"
	StatusUnavailable   Status = "unavailable"
)

// HTTPStatus is the response code an action result is rendered with.
func (s Status) HTTPStatus() int {
	switch s {
	case StatusInvalid:
		return http.StatusUnprocessableEntity
	case StatusRejected:
		return http.StatusUnauthorized
	case StatusUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Result is what an action reports back to the form.
type Result struct {
	Status             Status            `json:"status"`
	Message            string            `json:"message,omitempty"`
	FieldErrors        map[string]string `json:"fieldErrors,omitempty"`
	User               *authapi.User     `json:"user,omitempty"`
	Email              string            `json:"email,omitempty"`
	ChallengeExpiresAt *time.Time        `json:"challengeExpiresAt,omitempty"`
	Redirect           string            `json:"redirect,omitempty"`
}

// Backend is the subset of authclient.Client the actions call.
type Backend interface {
	Login(ctx context.Context, email, password string) (*authapi.LoginResponse, error)
	VerifyTwoFactor(ctx context.Context, email, code string) (*authapi.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*authapi.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Flow runs the actions against a backend and stores tokens through a tokenstore.Store.
type Flow struct {
	backend Backend
}

func NewFlow(backend Backend) *Flow {
	return &Flow{backend: backend}
}

// Login validates the form, then asks the backend. Only a full success stores tokens.
func (f *Flow) Login(ctx context.Context, store tokenstore.Store, email, password string) Result {
	email = strings.TrimSpace(email)
	if err := authclient.ValidateCredentials(email, password); err != nil {
		return invalid(err)
	}
	res, err := f.backend.Login(ctx, email, password)
	if err != nil {
		return failure(ctx, err, msgInvalidCredentials)
	}
	if res.RequiresTwoFactor {
		return Result{Status: StatusAwaitingCode, Email: email, ChallengeExpiresAt: res.ChallengeExpiresAt}
	}
	t := tokenstore.Tokens{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}
	if res.ExpiresAt != nil {
		t.ExpiresAt = *res.ExpiresAt
	}
	if res.RefreshExpiresAt != nil {
		t.RefreshExpiresAt = *res.RefreshExpiresAt
	}
	if err := store.Save(ctx, t); err != nil {
		slog.ErrorContext(ctx, "signin: store tokens", "error", err)
		return Result{Status: StatusUnavailable, Message: msgConnection}
	}
	return Result{Status: StatusAuthenticated, User: res.User}
}

// VerifyTwoFactor completes a pending login. Failures keep the form awaiting a code.
func (f *Flow) VerifyTwoFactor(ctx context.Context, store tokenstore.Store, email, code string) Result {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if err := authclient.ValidateCode(code); err != nil {
		r := invalid(err)
		r.Email = email
		return r
	}
	res, err := f.backend.VerifyTwoFactor(ctx, email, code)
	if err != nil {
		// A wrong or expired code leaves the form on the code step; lockouts and throttling reject it.
		var apiErr *authclient.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			msg := apiErr.Message
			if msg == "" {
				msg = msgInvalidCode
			}
			return Result{Status: StatusAwaitingCode, Message: msg, Email: email}
		}
		r := failure(ctx, err, msgInvalidCode)
		r.Email = email
		return r
	}
	if err := store.Save(ctx, tokensFrom(res)); err != nil {
		slog.ErrorContext(ctx, "signin: store tokens", "error", err)
		return Result{Status: StatusUnavailable, Message: msgConnection, Email: email}
	}
	return Result{Status: StatusAuthenticated, User: res.User}
}

// Refresh rotates the stored pair. A rejected refresh token clears the store.
func (f *Flow) Refresh(ctx context.Context, store tokenstore.Store) Result {
	t, err := store.Load(ctx)
	if err != nil || t.RefreshToken == "" {
		return Result{Status: StatusRejected, Message: msgSignedOut}
	}
	res, err := f.backend.Refresh(ctx, t.RefreshToken)
	if err != nil {
		if errors.Is(err, authclient.ErrUnauthenticated) {
			_ = store.Clear(ctx)
		}
		return failure(ctx, err, msgSignedOut)
	}
	if err := store.Save(ctx, tokensFrom(res)); err != nil {
		return Result{Status: StatusUnavailable, Message: msgConnection}
	}
	return Result{Status: StatusAuthenticated, User: res.User}
}

// Logout revokes the backend session when it can and clears the store regardless.
func (f *Flow) Logout(ctx context.Context, store tokenstore.Store) {
	if t, err := store.Load(ctx); err == nil && t.RefreshToken != "" {
		if err := f.backend.Logout(ctx, t.RefreshToken); err != nil {
			slog.WarnContext(ctx, "signin: backend logout failed", "error", err)
		}
	}
	_ = store.Clear(ctx)
}

func tokensFrom(res *authapi.TokenResponse) tokenstore.Tokens {
	return tokenstore.Tokens{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		ExpiresAt:        res.ExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}
}

func invalid(err error) Result {
	var ve *authclient.ValidationError
	if errors.As(err, &ve) {
		return Result{Status: StatusInvalid, Message: msgFixFields, FieldErrors: ve.Fields}
	}
	return Result{Status: StatusInvalid, Message: err.Error()}
}

// failure maps a backend error to a result. fallback is used when a rejection has no message.
func failure(ctx context.Context, err error, fallback string) Result {
	var apiErr *authclient.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity:
		msg := apiErr.Message
		if msg == "" {
			msg = msgFixFields
		}
		return Result{Status: StatusInvalid, Message: msg, FieldErrors: apiErr.Fields}
	case errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError:
		msg := apiErr.Message
		if msg == "" {
			msg = fallback
		}
		return Result{Status: StatusRejected, Message: msg}
	case errors.As(err, &apiErr):
		slog.WarnContext(ctx, "signin: backend error", "status", apiErr.Status, "code", apiErr.Code)
		return Result{Status: StatusUnavailable, Message: msgConnection}
	default:
		slog.WarnContext(ctx, "signin: backend unreachable", "error", err)
		return Result{Status: StatusUnavailable, Message: msgConnection}
	}
}
