package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chabaqa/backend/internal/devotp"
	"chabaqa/backend/internal/metrics"
	"chabaqa/backend/internal/security"
	"chabaqa/backend/internal/server/middleware"
	userdomain "chabaqa/backend/internal/user/domain"
)

type stubUsers map[string]*userdomain.User

func (s stubUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	return s[id], nil
}

func serve(h http.Handler, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewRouter_Health(t *testing.T) {
	h := NewRouter(Deps{})
	if rec := serve(h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("/readyz = %d", rec.Code)
	}
	rec := serve(h, http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"not_found"`) {
		t.Errorf("/nope = %d %s", rec.Code, rec.Body.String())
	}
}

func TestNewRouter_AuthWithoutService(t *testing.T) {
	h := NewRouter(Deps{Tokens: security.NewTestHMACProvider()})
	if rec := serve(h, http.MethodPost, "/auth/login", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("login = %d, want 503", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/auth/me", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("me = %d, want 401", rec.Code)
	}
}

func TestNewRouter_RateLimit(t *testing.T) {
	_, m := metrics.NewRegistry()
	h := NewRouter(Deps{AuthRateLimit: 1, Metrics: m})
	serve(h, http.MethodPost, "/auth/login", "")
	rec := serve(h, http.MethodPost, "/auth/login", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second login = %d, want 429", rec.Code)
	}
	// refresh is not limited
	if rec := serve(h, http.MethodPost, "/auth/refresh", ""); rec.Code == http.StatusTooManyRequests {
		t.Error("refresh should not be rate limited")
	}
}

func TestNewRouter_RateLimitUsesTrustedForwardedFor(t *testing.T) {
	trusted, err := middleware.ParseTrustedProxies([]string{"10.0.0.0/24"})
	if err != nil {
		t.Fatal(err)
	}
	h := NewRouter(Deps{AuthRateLimit: 1, TrustedProxies: trusted})
	login := func(peer, xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{}"))
		req.RemoteAddr = peer
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// Two browsers behind the gate.
	if code := login("10.0.0.1:1234", "198.51.100.1"); code == http.StatusTooManyRequests {
		t.Fatal("first browser limited")
	}
	if code := login("10.0.0.1:1234", "198.51.100.2"); code == http.StatusTooManyRequests {
		t.Error("second browser behind the gate shares the first one's bucket")
	}

	// A direct caller cannot pick its bucket.
	if code := login("203.0.113.7:1", "192.0.2.1"); code == http.StatusTooManyRequests {
		t.Fatal("direct caller limited on first request")
	}
	if code := login("203.0.113.7:1", "192.0.2.2"); code != http.StatusTooManyRequests {
		t.Errorf("spoofed X-Forwarded-For from an untrusted peer = %d, want 429", code)
	}
}

func TestNewRouter_AdminRequiresStoredRole(t *testing.T) {
	tokens := security.NewTestHMACProvider()
	users := stubUsers{
		"admin-1": {ID: "admin-1", Role: userdomain.RoleAdmin, Status: userdomain.UserStatusActive},
		"user-1":  {ID: "user-1", Role: userdomain.RoleUser, Status: userdomain.UserStatusActive},
		// Token still says admin but the stored role was lowered.
		"demoted": {ID: "demoted", Role: userdomain.RoleUser, Status: userdomain.UserStatusActive},
	}
	h := NewRouter(Deps{Tokens: tokens, Users: users})

	issue := func(id string, role userdomain.Role) string {
		tok, _, _, err := tokens.IssueAccess("s-"+id, security.Principal{ID: id, Email: id + "@x.io", Role: role})
		if err != nil {
			t.Fatalf("IssueAccess: %v", err)
		}
		return tok
	}

	path := "/admin/users/target/role"
	if rec := serve(h, http.MethodPut, path, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous = %d, want 401", rec.Code)
	}
	if rec := serve(h, http.MethodPut, path, issue("user-1", userdomain.RoleUser)); rec.Code != http.StatusForbidden {
		t.Errorf("user = %d, want 403", rec.Code)
	}
	if rec := serve(h, http.MethodPut, path, issue("demoted", userdomain.RoleAdmin)); rec.Code != http.StatusForbidden {
		t.Errorf("demoted = %d, want 403", rec.Code)
	}
	// Admin passes the role check; the nil auth service answers 503.
	if rec := serve(h, http.MethodPut, path, issue("admin-1", userdomain.RoleAdmin)); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("admin = %d, want 503", rec.Code)
	}
}

func TestNewRouter_DevOTPOnlyWhenConfigured(t *testing.T) {
	if rec := serve(NewRouter(Deps{}), http.MethodGet, "/dev/2fa/code?email=a@b.com", ""); rec.Code != http.StatusNotFound {
		t.Errorf("without store = %d, want 404", rec.Code)
	}

	store := devotp.NewMemoryStore(time.Minute)
	store.Put(context.Background(), "a@b.com", "123456", time.Now().Add(time.Minute))
	rec := serve(NewRouter(Deps{DevOTP: store}), http.MethodGet, "/dev/2fa/code?email=a@b.com", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "123456") {
		t.Errorf("with store = %d %s", rec.Code, rec.Body.String())
	}
}

func TestNewRouter_Metrics(t *testing.T) {
	reg, m := metrics.NewRegistry()
	h := NewRouter(Deps{Metrics: m, MetricsHandler: metrics.Handler(reg)})
	serve(h, http.MethodGet, "/healthz", "")
	rec := serve(h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `route="/healthz"`) {
		t.Errorf("/metrics = %d", rec.Code)
	}
}
