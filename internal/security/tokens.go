package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chabaqa/backend/internal/user/domain"
)

var (
	// ErrInvalidToken is returned for any malformed, badly signed, expired, or mistyped token.
	// Callers are never told which check failed.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned when an HMAC secret is shorter than MinSecretLen.
	ErrWeakSecret = errors.New("jwt secret must be at least 32 bytes")
	// ErrNoSigningKey is returned when a verify-only provider is asked to issue tokens.
	ErrNoSigningKey = errors.New("token provider has no signing key")
)

// MinSecretLen is the shortest accepted HS256 secret.
const MinSecretLen = 32

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Principal is the verified identity carried by a session token.
type Principal struct {
	ID    string
	Email string
	Role  domain.Role
}

// Claims holds the JWT claims shared by access and refresh tokens. Type tells them apart.
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	Type      string `json:"typ"`
	SessionID string `json:"sid,omitempty"`
}

// RefreshInfo is what a verified refresh token yields: the principal plus the rotation binding.
type RefreshInfo struct {
	Principal Principal
	SessionID string
	JTI       string
	ExpiresAt time.Time
}

// TokenProvider issues and verifies access and refresh tokens.
// It signs with HS256 (shared secret) or with RS256/ES256 (private/public key).
type TokenProvider struct {
	method     jwt.SigningMethod
	signKey    any
	verifyKey  any
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// privateKey may be nil for a verify-only provider such as the edge gate.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	var method jwt.SigningMethod
	switch publicKey.(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	p := &TokenProvider{
		method:     method,
		verifyKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	if privateKey != nil {
		p.signKey = privateKey
	}
	return p, nil
}

// NewHMACTokenProvider returns a TokenProvider that signs and verifies with the process-wide secret (HS256).
func NewHMACTokenProvider(secret []byte, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	key := append([]byte(nil), secret...)
	return &TokenProvider{
		method:     jwt.SigningMethodHS256,
		signKey:    key,
		verifyKey:  key,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source used for issuing and expiry checks. Intended for tests.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	p.now = now
	return p
}

// Alg returns the JWS algorithm name (HS256, RS256, or ES256).
func (p *TokenProvider) Alg() string {
	return p.method.Alg()
}

// AccessTTL returns the access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues an access JWT for the principal within the given backend session.
// Returns the token string, its jti, and expiration time.
func (p *TokenProvider) IssueAccess(sessionID string, pr Principal) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(tokenTypeAccess, p.accessTTL, sessionID, pr)
}

// IssueRefresh issues a long-lived refresh JWT and returns the token, its jti
// (for rotation binding), and expiration time. Caller should store jti on the session.
func (p *TokenProvider) IssueRefresh(sessionID string, pr Principal) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(tokenTypeRefresh, p.refreshTTL, sessionID, pr)
}

func (p *TokenProvider) issue(typ string, ttl time.Duration, sessionID string, pr Principal) (string, string, time.Time, error) {
	if p.signKey == nil {
		return "", "", time.Time{}, ErrNoSigningKey
	}
	jti, err := generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   pr.ID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:     pr.Email,
		Role:      string(pr.Role),
		Type:      typ,
		SessionID: sessionID,
	}
	token, err := jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

// VerifyAccess checks signature, issuer, audience, type, and expiry of an access token
// and returns its principal. It performs no I/O.
func (p *TokenProvider) VerifyAccess(tokenString string) (Principal, error) {
	claims, err := p.parse(tokenString, tokenTypeAccess)
	if err != nil {
		return Principal{}, err
	}
	return principalFrom(claims), nil
}

// VerifyAccessSession is VerifyAccess that also returns the backend session id the token was issued for.
func (p *TokenProvider) VerifyAccessSession(tokenString string) (Principal, string, error) {
	claims, err := p.parse(tokenString, tokenTypeAccess)
	if err != nil {
		return Principal{}, "", err
	}
	return principalFrom(claims), claims.SessionID, nil
}

// VerifyRefresh is VerifyAccess for refresh tokens; it also returns the session id and jti.
func (p *TokenProvider) VerifyRefresh(tokenString string) (RefreshInfo, error) {
	claims, err := p.parse(tokenString, tokenTypeRefresh)
	if err != nil {
		return RefreshInfo{}, err
	}
	if claims.SessionID == "" || claims.ID == "" {
		return RefreshInfo{}, ErrInvalidToken
	}
	return RefreshInfo{
		Principal: principalFrom(claims),
		SessionID: claims.SessionID,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (p *TokenProvider) parse(tokenString, typ string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return p.verifyKey, nil },
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	// exp == now is already expired; no grace window.
	if !p.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrInvalidToken
	}
	if claims.Type != typ || claims.Subject == "" || !domain.Role(claims.Role).Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func principalFrom(c *Claims) Principal {
	return Principal{ID: c.Subject, Email: c.Email, Role: domain.Role(c.Role)}
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
