package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chabaqa/backend/internal/authapi"
	"chabaqa/backend/internal/envelope"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req authapi.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch {
		case req.Email == "admin@chabaqa.dev":
			exp := time.Now().Add(5 * time.Minute)
			envelope.WriteData(w, http.StatusOK, authapi.LoginResponse{RequiresTwoFactor: true, ChallengeExpiresAt: &exp})
		case req.Password == "password123":
			envelope.WriteData(w, http.StatusOK, authapi.LoginResponse{AccessToken: "acc", RefreshToken: "ref"})
		default:
			envelope.WriteError(w, http.StatusUnauthorized, envelope.CodeInvalidCredentials, "Invalid email or password", nil)
		}
	})
	r.Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer acc" {
			envelope.WriteError(w, http.StatusUnauthorized, envelope.CodeUnauthenticated, "missing or invalid authorization", nil)
			return
		}
		envelope.WriteData(w, http.StatusOK, authapi.User{ID: "u-1", Email: "user@chabaqa.dev", Role: "user"})
	})
	r.Post("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteError(w, http.StatusUnprocessableEntity, envelope.CodeValidation, "invalid input", map[string]string{"email": "taken"})
	})
	r.Post("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteData(w, http.StatusOK, authapi.LogoutResponse{LoggedOut: true})
	})
	r.Get("/dev/2fa/code", func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteData(w, http.StatusOK, map[string]string{"email": r.URL.Query().Get("email"), "code": "123456"})
	})
	r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_LoginAndMe(t *testing.T) {
	c := New(fakeBackend(t).URL)
	ctx := context.Background()

	res, err := c.Login(ctx, "user@chabaqa.dev", "password123")
	require.NoError(t, err)
	assert.False(t, res.RequiresTwoFactor)
	assert.Equal(t, "acc", res.AccessToken)

	u, err := c.Me(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
}

func TestClient_TwoFactorRequired(t *testing.T) {
	res, err := New(fakeBackend(t).URL).Login(context.Background(), "admin@chabaqa.dev", "password123")
	require.NoError(t, err)
	assert.True(t, res.RequiresTwoFactor)
	assert.Empty(t, res.AccessToken)
	assert.NotNil(t, res.ChallengeExpiresAt)
}

func TestClient_APIErrors(t *testing.T) {
	c := New(fakeBackend(t).URL)
	ctx := context.Background()

	_, err := c.Login(ctx, "user@chabaqa.dev", "wrong-password")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, envelope.CodeInvalidCredentials, apiErr.Code)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = c.Me(ctx, "stale")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = c.Register(ctx, authapi.RegisterRequest{Email: "a@b.co", Password: "password123"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "taken", apiErr.Fields["email"])
	assert.NotErrorIs(t, err, ErrUnauthenticated)

	err = c.do(ctx, http.MethodGet, "/broken", "", nil, nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestClient_LogoutAndDevCode(t *testing.T) {
	c := New(fakeBackend(t).URL)
	ctx := context.Background()
	require.NoError(t, c.Logout(ctx, "ref"))
	code, err := c.DevCode(ctx, "admin@chabaqa.dev")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
}

func TestClient_ForwardsClientIP(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("X-Forwarded-For"))
		envelope.WriteData(w, http.StatusOK, authapi.LoginResponse{AccessToken: "acc", RefreshToken: "ref"})
	}))
	defer srv.Close()
	c := New(srv.URL)

	_, err := c.Login(WithForwardedFor(context.Background(), "198.51.100.1"), "a@b.com", "password123")
	require.NoError(t, err)
	_, err = c.Login(WithForwardedFor(context.Background(), "198.51.100.2"), "a@b.com", "password123")
	require.NoError(t, err)
	_, err = c.Login(context.Background(), "a@b.com", "password123")
	require.NoError(t, err)

	assert.Equal(t, []string{"198.51.100.1", "198.51.100.2", ""}, seen)
}

func TestClient_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	_, err := New(srv.URL).Login(context.Background(), "user@chabaqa.dev", "password123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, ValidateCredentials("user@chabaqa.dev", "password123"))

	var ve *ValidationError
	require.ErrorAs(t, ValidateCredentials("", ""), &ve)
	assert.Equal(t, "Email is required", ve.Fields["email"])
	assert.Equal(t, "Password is required", ve.Fields["password"])

	require.ErrorAs(t, ValidateCredentials("not-an-email", "short"), &ve)
	assert.Equal(t, "Enter a valid email address", ve.Fields["email"])
	assert.Equal(t, "Password must be at least 8 characters", ve.Fields["password"])
}

func TestValidateCode(t *testing.T) {
	assert.NoError(t, ValidateCode("012345"))
	for _, c := range []string{"", "12345", "1234567", "12a456", "１２３４５６"} {
		assert.Error(t, ValidateCode(c), c)
	}
}
