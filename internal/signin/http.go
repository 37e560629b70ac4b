package signin

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"chabaqa/backend/internal/authclient"
	"chabaqa/backend/internal/server/middleware"
	"chabaqa/backend/internal/tokenstore"
)

const maxFormBytes = 16 << 10

// Handler exposes the Flow as form actions under one router.
type Handler struct {
	flow       *Flow
	cookies    tokenstore.Cookies
	signInPath string
	proxies    middleware.TrustedProxies
}

func NewHandler(flow *Flow, cookies tokenstore.Cookies, signInPath string) *Handler {
	if signInPath == "" {
		signInPath = "/signin"
	}
	return &Handler{flow: flow, cookies: cookies, signInPath: signInPath}
}

// WithTrustedProxies sets the load balancers in front of this server whose X-Forwarded-For is honoured
// when naming the browser to the backend.
func (h *Handler) WithTrustedProxies(p middleware.TrustedProxies) *Handler {
	h.proxies = p
	return h
}

// backendContext carries the browser's address to the backend so rate limits apply per browser.
func (h *Handler) backendContext(r *http.Request) context.Context {
	return authclient.WithForwardedFor(r.Context(), h.proxies.Resolve(r))
}

// Routes mounts POST /login, /verify-2fa, /refresh, and /logout.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	r.Post("/verify-2fa", h.VerifyTwoFactor)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)
	return r
}

type form struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	VerificationCode string `json:"verificationCode"`
	Redirect         string `json:"redirect"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	f, ok := readForm(w, r)
	if !ok {
		return
	}
	res := h.flow.Login(h.backendContext(r), h.cookies.ForRequest(w, r), f.Email, f.Password)
	if res.Status == StatusAuthenticated {
		res.Redirect, _ = isSafeRedirectPath(f.Redirect)
	}
	writeResult(w, res)
}

func (h *Handler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	f, ok := readForm(w, r)
	if !ok {
		return
	}
	res := h.flow.VerifyTwoFactor(h.backendContext(r), h.cookies.ForRequest(w, r), f.Email, f.VerificationCode)
	if res.Status == StatusAuthenticated {
		res.Redirect, _ = isSafeRedirectPath(f.Redirect)
	}
	writeResult(w, res)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.flow.Refresh(h.backendContext(r), h.cookies.ForRequest(w, r)))
}

// Logout clears the cookies and sends the browser to the sign-in page with 303.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.flow.Logout(h.backendContext(r), h.cookies.ForRequest(w, r))
	http.Redirect(w, r, h.signInPath, http.StatusSeeOther)
}

// readForm accepts a JSON body or a urlencoded form.
func readForm(w http.ResponseWriter, r *http.Request) (form, bool) {
	var f form
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			writeResult(w, Result{Status: StatusInvalid, Message: "malformed request body"})
			return f, false
		}
		return f, true
	}
	if err := r.ParseForm(); err != nil {
		writeResult(w, Result{Status: StatusInvalid, Message: "malformed form"})
		return f, false
	}
	f.Email = r.PostForm.Get("email")
	f.Password = r.PostForm.Get("password")
	f.VerificationCode = r.PostForm.Get("verificationCode")
	f.Redirect = r.PostForm.Get("redirect")
	return f, true
}

func writeResult(w http.ResponseWriter, res Result) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(res.Status.HTTPStatus())
	_ = json.NewEncoder(w).Encode(res)
}

// isSafeRedirectPath accepts only same-origin absolute paths.
func isSafeRedirectPath(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", true
	}
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") || strings.Contains(p, "://") {
		return "", false
	}
	return p, true
}
