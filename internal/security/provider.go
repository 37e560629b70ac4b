package security

import (
	"crypto"
	"errors"

	"chabaqa/backend/internal/config"
)

// ErrNoKeyMaterial is returned when neither JWT_SECRET nor a key pair is configured.
var ErrNoKeyMaterial = errors.New("set JWT_SECRET or JWT_PUBLIC_KEY (and JWT_PRIVATE_KEY to issue tokens)")

// ProviderFromConfig builds the TokenProvider described by cfg. JWT_SECRET wins over a key pair.
// With only JWT_PUBLIC_KEY the provider can verify but not issue, which is all the gate needs.
func ProviderFromConfig(cfg *config.Config) (*TokenProvider, error) {
	if cfg.JWTSecret != "" {
		return NewHMACTokenProvider([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	}
	if cfg.JWTPublicKey == "" {
		return nil, ErrNoKeyMaterial
	}
	pub, err := ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	var signer crypto.Signer
	if cfg.JWTPrivateKey != "" {
		signer, err = ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return nil, err
		}
	}
	return NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
}
