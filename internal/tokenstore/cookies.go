package tokenstore

import (
	"context"
	"net/http"
	"time"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// Cookies writes and reads the token pair as HttpOnly, SameSite=Lax cookies on path "/".
type Cookies struct {
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Write sets both cookies. An empty token is skipped.
func (c Cookies) Write(w http.ResponseWriter, t Tokens) {
	if t.AccessToken != "" {
		http.SetCookie(w, c.cookie(AccessCookie, t.AccessToken, maxAge(c.AccessTTL, t.ExpiresAt)))
	}
	if t.RefreshToken != "" {
		http.SetCookie(w, c.cookie(RefreshCookie, t.RefreshToken, maxAge(c.RefreshTTL, t.RefreshExpiresAt)))
	}
}

// Read returns whatever token cookies the request carries.
func (c Cookies) Read(r *http.Request) Tokens {
	var t Tokens
	if ck, err := r.Cookie(AccessCookie); err == nil {
		t.AccessToken = ck.Value
	}
	if ck, err := r.Cookie(RefreshCookie); err == nil {
		t.RefreshToken = ck.Value
	}
	return t
}

// ClearAccess expires the access cookie only.
func (c Cookies) ClearAccess(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessCookie, "", -1))
}

// Clear expires both cookies.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessCookie, "", -1))
	http.SetCookie(w, c.cookie(RefreshCookie, "", -1))
}

func (c Cookies) cookie(name, value string, age int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   age,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// maxAge prefers the configured TTL and falls back to the token's own expiry.
func maxAge(ttl time.Duration, expires time.Time) int {
	if ttl > 0 {
		return int(ttl.Seconds())
	}
	if !expires.IsZero() {
		if s := int(time.Until(expires).Seconds()); s > 0 {
			return s
		}
	}
	return 0
}

// ForRequest adapts the cookies of one request/response pair to Store.
func (c Cookies) ForRequest(w http.ResponseWriter, r *http.Request) Store {
	return &requestStore{cookies: c, w: w, r: r}
}

type requestStore struct {
	cookies Cookies
	w       http.ResponseWriter
	r       *http.Request
	saved   *Tokens
}

func (s *requestStore) Load(context.Context) (Tokens, error) {
	t := s.cookies.Read(s.r)
	if s.saved != nil {
		t = *s.saved
	}
	if t.Empty() {
		return Tokens{}, ErrNoTokens
	}
	return t, nil
}

func (s *requestStore) Save(_ context.Context, t Tokens) error {
	s.cookies.Write(s.w, t)
	s.saved = &t
	return nil
}

func (s *requestStore) Clear(context.Context) error {
	s.cookies.Clear(s.w)
	s.saved = &Tokens{}
	return nil
}
