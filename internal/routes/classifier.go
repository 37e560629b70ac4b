// Package routes classifies request paths for the edge gate: public, protected, admin-only,
// creator-only, or auth-redirect, plus the bypass set the gate never inspects.
package routes

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Class is the protection category of a path.
type Class string

const (
	Public       Class = "public"
	Protected    Class = "protected"
	AdminOnly    Class = "admin_only"
	CreatorOnly  Class = "creator_only"
	AuthRedirect Class = "auth_redirect"
)

// RequiresAuth reports whether the class needs a signed-in principal.
// Admin-only and creator-only paths are protected even when the protected list omits them.
func (c Class) RequiresAuth() bool {
	return c == Protected || c == AdminOnly || c == CreatorOnly
}

// regexPrefix marks a pattern as a Go regular expression instead of a glob.
const regexPrefix = "re:"

// Rules lists the patterns of each group. Patterns are doublestar globs ("/creator/**",
// "/community/*/dashboard/**", "/{signin,signup}") or "re:"-prefixed regular expressions.
type Rules struct {
	Protected    []string `yaml:"protected"`
	AdminOnly    []string `yaml:"admin_only"`
	CreatorOnly  []string `yaml:"creator_only"`
	AuthRedirect []string `yaml:"auth_redirect"`
	Bypass       []string `yaml:"bypass"`
}

// DefaultRules is the one list shared by every web surface.
func DefaultRules() Rules {
	return Rules{
		Protected: []string{
			"/creator/**",
			"/dashboard/**",
			"/settings/**",
			"/profile/**",
			"/admin/**",
			"/community/*/dashboard/**",
		},
		AdminOnly:    []string{"/admin/**"},
		CreatorOnly:  []string{"/creator/**"},
		AuthRedirect: []string{"/signin", "/signup", "/register"},
		Bypass: []string{
			"/_next/**",
			"/api/**",
			"/static/**",
			"/favicon.ico",
			"/robots.txt",
			"/{images,assets,fonts}/**/*.{png,jpg,jpeg,gif,svg,webp,ico,css,js,map,woff,woff2,ttf}",
			"/*.{png,jpg,jpeg,gif,svg,webp,ico,css,js,map,woff,woff2,ttf}",
		},
	}
}

type matcher struct {
	pattern string
	glob    string
	re      *regexp.Regexp
}

func compile(pattern string) (matcher, error) {
	p := strings.TrimSpace(pattern)
	if strings.HasPrefix(p, regexPrefix) {
		re, err := regexp.Compile(strings.TrimPrefix(p, regexPrefix))
		if err != nil {
			return matcher{}, fmt.Errorf("routes: pattern %q: %w", pattern, err)
		}
		return matcher{pattern: p, re: re}, nil
	}
	if !strings.HasPrefix(p, "/") {
		return matcher{}, fmt.Errorf("routes: pattern %q must start with /", pattern)
	}
	if !doublestar.ValidatePattern(p) {
		return matcher{}, fmt.Errorf("routes: pattern %q is not a valid glob", pattern)
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return matcher{pattern: p, glob: p}, nil
}

func (m matcher) match(path string) bool {
	if m.re != nil {
		return m.re.MatchString(path)
	}
	if ok, _ := doublestar.Match(m.glob, path); ok {
		return true
	}
	// "/x/**" also covers "/x" itself.
	if base, ok := strings.CutSuffix(m.glob, "/**"); ok && base != "" {
		matched, _ := doublestar.Match(base, path)
		return matched
	}
	return false
}

func compileAll(patterns []string) ([]matcher, error) {
	out := make([]matcher, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		m, err := compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func matchAny(ms []matcher, path string) bool {
	for _, m := range ms {
		if m.match(path) {
			return true
		}
	}
	return false
}

// normalize drops the query, collapses a trailing slash, and makes the path absolute.
func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

// Classifier maps paths to a Class. It is immutable and safe for concurrent use.
type Classifier struct {
	rules        Rules
	adminOnly    []matcher
	creatorOnly  []matcher
	protected    []matcher
	authRedirect []matcher
	bypass       []matcher
}

// New compiles rules. Any invalid pattern fails the whole set.
func New(rules Rules) (*Classifier, error) {
	c := &Classifier{rules: rules}
	var err error
	if c.adminOnly, err = compileAll(rules.AdminOnly); err != nil {
		return nil, err
	}
	if c.creatorOnly, err = compileAll(rules.CreatorOnly); err != nil {
		return nil, err
	}
	if c.protected, err = compileAll(rules.Protected); err != nil {
		return nil, err
	}
	if c.authRedirect, err = compileAll(rules.AuthRedirect); err != nil {
		return nil, err
	}
	if c.bypass, err = compileAll(rules.Bypass); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns a Classifier over DefaultRules.
func Default() *Classifier {
	c, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

// Rules returns the patterns the classifier was built from.
func (c *Classifier) Rules() Rules {
	return c.rules
}

// Classify returns the most specific class for path: admin-only, then creator-only, then protected,
// then auth-redirect, else public.
func (c *Classifier) Classify(path string) Class {
	p := normalize(path)
	switch {
	case matchAny(c.adminOnly, p):
		return AdminOnly
	case matchAny(c.creatorOnly, p):
		return CreatorOnly
	case matchAny(c.protected, p):
		return Protected
	case matchAny(c.authRedirect, p):
		return AuthRedirect
	}
	return Public
}

// Bypass reports whether path is an internal asset or API path the gate passes through untouched.
// A path that classifies as requiring auth is never bypassed, whatever its extension.
func (c *Classifier) Bypass(path string) bool {
	p := normalize(path)
	if !matchAny(c.bypass, p) {
		return false
	}
	return !c.Classify(p).RequiresAuth()
}
