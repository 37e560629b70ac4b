package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"chabaqa/backend/internal/security"
	userdomain "chabaqa/backend/internal/user/domain"
)

func issue(t *testing.T, tokens *security.TokenProvider) string {
	t.Helper()
	tok, _, _, err := tokens.IssueAccess("session-1", security.Principal{ID: "user-1", Email: "a@b.com", Role: userdomain.RoleAdmin})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	return tok
}

func serve(tokens *security.TokenProvider, r *http.Request) (Identity, bool, int) {
	var (
		id Identity
		ok bool
	)
	h := Authenticate(tokens)(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok = GetIdentity(r.Context())
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return id, ok, rec.Code
}

func TestAuthenticate_Bearer(t *testing.T) {
	tokens := security.NewTestHMACProvider()
	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+issue(t, tokens))

	id, ok, code := serve(tokens, r)
	if code != http.StatusOK || !ok {
		t.Fatalf("code = %d, ok = %v", code, ok)
	}
	want := Identity{UserID: "user-1", Email: "a@b.com", Role: userdomain.RoleAdmin, SessionID: "session-1"}
	if id != want {
		t.Errorf("identity = %+v, want %+v", id, want)
	}
}

func TestAuthenticate_CookieAndCaseInsensitiveScheme(t *testing.T) {
	tokens := security.NewTestHMACProvider()
	tok := issue(t, tokens)

	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: tok})
	if _, ok, code := serve(tokens, r); !ok || code != http.StatusOK {
		t.Errorf("cookie: code = %d", code)
	}

	r = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.Header.Set("Authorization", "bearer "+tok)
	if _, ok, _ := serve(tokens, r); !ok {
		t.Error("lowercase bearer should be accepted")
	}
}

func TestAuthenticate_MissingOrInvalid(t *testing.T) {
	tokens := security.NewTestHMACProvider()
	for name, header := range map[string]string{
		"missing":   "",
		"basic":     "Basic dXNlcjpwYXNz",
		"garbage":   "Bearer not-a-token",
		"too short": "Bearer",
	} {
		r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if _, ok, code := serve(tokens, r); ok || code != http.StatusUnauthorized {
			t.Errorf("%s: code = %d, ok = %v", name, code, ok)
		}
	}
}

func TestAuthenticate_OptionalPassesAnonymous(t *testing.T) {
	tokens := security.NewTestHMACProvider()
	called := false
	h := Authenticate(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := GetIdentity(r.Context()); ok {
			t.Error("anonymous request should carry no identity")
		}
	}))
	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.Header.Set("Authorization", "Bearer bad")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if !called {
		t.Error("handler should run for anonymous requests")
	}
}
