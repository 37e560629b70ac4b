// Package gate decides, for every navigable request, whether it passes to the web app,
// is redirected, or is annotated with the caller's identity.
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"chabaqa/backend/internal/policy/engine"
	"chabaqa/backend/internal/routes"
	"chabaqa/backend/internal/security"
	"chabaqa/backend/internal/tokenstore"
)

// Headers forwarded to the web app for authenticated requests.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

const userHeaderPrefix = "X-User-"

// Outcome names what the gate did with a request. The values label the decision metric.
type Outcome string

const (
	OutcomeBypass          Outcome = "bypass"
	OutcomePass            Outcome = "pass"
	OutcomeRedirectSignIn  Outcome = "redirect_signin"
	OutcomeRedirectHome    Outcome = "redirect_home"
	OutcomeRedirectLanding Outcome = "redirect_landing"
)

// Decision is the result of evaluating one request.
type Decision struct {
	Outcome   Outcome
	Class     routes.Class
	Location  string
	Principal *security.Principal
	// ClearAccessCookie is set when the request carried an access cookie that failed verification.
	ClearAccessCookie bool
}

// Verifier checks an access token. *security.TokenProvider implements it.
type Verifier interface {
	VerifyAccess(token string) (security.Principal, error)
}

// RuleSource yields the classifier in effect. *routes.Watcher implements it.
type RuleSource interface {
	Current() *routes.Classifier
}

// StaticRules wraps a fixed classifier as a RuleSource.
type StaticRules struct{ C *routes.Classifier }

func (s StaticRules) Current() *routes.Classifier { return s.C }

// DecisionRecorder counts decisions by outcome. *metrics.Metrics implements it.
type DecisionRecorder interface {
	GateDecision(outcome string)
}

// Paths are the redirect destinations.
type Paths struct {
	SignIn      string
	Explore     string
	CreatorHome string
	Landing     string
}

// DefaultPaths returns the web app's standard destinations.
func DefaultPaths() Paths {
	return Paths{SignIn: "/signin", Explore: "/explore", CreatorHome: "/creator/dashboard", Landing: "/dashboard"}
}

// Options configure a Gate. Zero values fall back to defaults.
type Options struct {
	Paths      Paths
	Authorizer engine.RouteAuthorizer
	Cookies    tokenstore.Cookies
	Recorder   DecisionRecorder
}

// Gate runs the route authorization state machine.
type Gate struct {
	verifier Verifier
	rules    RuleSource
	paths    Paths
	authz    engine.RouteAuthorizer
	cookies  tokenstore.Cookies
	recorder DecisionRecorder
}

func New(verifier Verifier, rules RuleSource, opts Options) *Gate {
	paths := DefaultPaths()
	if opts.Paths.SignIn != "" {
		paths.SignIn = opts.Paths.SignIn
	}
	if opts.Paths.Explore != "" {
		paths.Explore = opts.Paths.Explore
	}
	if opts.Paths.CreatorHome != "" {
		paths.CreatorHome = opts.Paths.CreatorHome
	}
	if opts.Paths.Landing != "" {
		paths.Landing = opts.Paths.Landing
	}
	authz := opts.Authorizer
	if authz == nil {
		authz = engine.StaticAuthorizer{}
	}
	return &Gate{
		verifier: verifier,
		rules:    rules,
		paths:    paths,
		authz:    authz,
		cookies:  opts.Cookies,
		recorder: opts.Recorder,
	}
}

// Evaluate classifies r and decides what to do with it. It never writes to r.
func (g *Gate) Evaluate(r *http.Request) Decision {
	c := g.rules.Current()
	path := r.URL.Path
	if c.Bypass(path) {
		return Decision{Outcome: OutcomeBypass, Class: routes.Public}
	}

	var d Decision
	d.Class = c.Classify(path)
	if ck, err := r.Cookie(tokenstore.AccessCookie); err == nil && ck.Value != "" {
		if pr, err := g.verifier.VerifyAccess(ck.Value); err == nil {
			d.Principal = &pr
		} else {
			d.ClearAccessCookie = true
		}
	}

	switch {
	case d.Class == routes.AuthRedirect && d.Principal != nil:
		d.Outcome = OutcomeRedirectHome
		d.Location = g.home(d.Principal)
	case d.Class.RequiresAuth() && d.Principal == nil:
		d.Outcome = OutcomeRedirectSignIn
		d.Location = g.paths.SignIn + "?redirect=" + url.QueryEscape(r.URL.RequestURI())
	case d.Class == routes.AdminOnly || d.Class == routes.CreatorOnly:
		if g.allowed(r.Context(), path, d) {
			d.Outcome = OutcomePass
		} else {
			d.Outcome = OutcomeRedirectLanding
			d.Location = g.paths.Landing
		}
	default:
		d.Outcome = OutcomePass
	}
	return d
}

func (g *Gate) home(pr *security.Principal) string {
	if pr.Role.CanCreate() {
		return g.paths.CreatorHome
	}
	return g.paths.Explore
}

func (g *Gate) allowed(ctx context.Context, path string, d Decision) bool {
	ok, err := g.authz.AllowRoute(ctx, engine.RouteInput{
		Path:  path,
		Class: string(d.Class),
		Role:  string(d.Principal.Role),
	})
	if err != nil {
		slog.WarnContext(ctx, "gate: authorizer failed, denying", "path", path, "error", err)
		return false
	}
	return ok
}

// Middleware applies Evaluate. Passing requests reach next with identity headers set;
// client-supplied identity headers are removed first on every request.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = stripUserHeaders(r)
		d := g.Evaluate(r)
		if g.recorder != nil {
			g.recorder.GateDecision(string(d.Outcome))
		}
		if d.ClearAccessCookie {
			g.cookies.ClearAccess(w)
		}
		if d.Location != "" {
			http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
			return
		}
		if d.Principal != nil {
			r.Header.Set(HeaderUserID, d.Principal.ID)
			r.Header.Set(HeaderUserEmail, d.Principal.Email)
			r.Header.Set(HeaderUserRole, string(d.Principal.Role))
		}
		next.ServeHTTP(w, r)
	})
}

func stripUserHeaders(r *http.Request) *http.Request {
	r2 := r.Clone(r.Context())
	for k := range r2.Header {
		if strings.HasPrefix(http.CanonicalHeaderKey(k), userHeaderPrefix) {
			r2.Header.Del(k)
		}
	}
	return r2
}
