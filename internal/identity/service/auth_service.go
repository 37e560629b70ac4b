package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"chabaqa/backend/internal/audit"
	identitydomain "chabaqa/backend/internal/identity/domain"
	"chabaqa/backend/internal/mfa"
	mfadomain "chabaqa/backend/internal/mfa/domain"
	mfarepo "chabaqa/backend/internal/mfa/repository"
	"chabaqa/backend/internal/security"
	"chabaqa/backend/internal/server/middleware"
	sessiondomain "chabaqa/backend/internal/session/domain"
	"chabaqa/backend/internal/telemetry"
	telemetrydomain "chabaqa/backend/internal/telemetry/domain"
	userdomain "chabaqa/backend/internal/user/domain"
	userrepo "chabaqa/backend/internal/user/repository"
)

// Sentinel errors for auth service; handler maps them to HTTP statuses and envelope codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuse      = errors.New("refresh token reuse detected; all sessions revoked")
	ErrInvalidCode            = errors.New("invalid or expired verification code")
	ErrTooManyAttempts        = errors.New("too many invalid codes; please sign in again")
	ErrCodeDelivery           = errors.New("could not deliver verification code")
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidRole            = errors.New("role must be user, creator, or admin")
)

// AuthResult holds issued tokens and the signed-in user.
type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	SessionID        string
	User             *userdomain.User
}

// LoginResult is exactly one of Tokens (signed in) or RequiresTwoFactor (code sent, no tokens).
type LoginResult struct {
	Tokens             *AuthResult
	RequiresTwoFactor  bool
	ChallengeExpiresAt time.Time
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	// CreateWithIdentity stores the user and its local identity atomically; a taken email
	// returns userrepo.ErrEmailTaken.
	CreateWithIdentity(ctx context.Context, u *userdomain.User, ident *identitydomain.Identity) error
	SetRole(ctx context.Context, id string, role userdomain.Role) error
	SetTwoFactor(ctx context.Context, id string, enabled bool) error
}

// IdentityRepo is the minimal identity repository needed by the auth service.
type IdentityRepo interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error)
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	Revoke(ctx context.Context, id string) error
	RevokeAllSessionsByUser(ctx context.Context, userID string) error
	UpdateRefreshToken(ctx context.Context, sessionID, jti, refreshTokenHash string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}

// CodeSender delivers a second-factor code to an email address (mail API, or the dev OTP store).
type CodeSender interface {
	SendCode(ctx context.Context, email, code string) error
}

// Options holds the tunables and optional sinks of an AuthService.
type Options struct {
	// MaxAttempts caps code submissions per challenge; 0 disables the cap.
	MaxAttempts int
	// ChallengeTTL is how long an emailed code stays valid.
	ChallengeTTL time.Duration
	// Events receives auth events asynchronously. May be nil.
	Events telemetry.EventEmitter
	// Audit records auth outcomes. May be nil.
	Audit audit.AuditLogger
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// AuthService implements register, login with optional email 2FA, refresh rotation, logout, and role management.
type AuthService struct {
	userRepo     UserRepo
	identityRepo IdentityRepo
	sessionRepo  SessionRepo
	challenges   mfarepo.Repository
	codes        CodeSender
	hasher       *security.Hasher
	tokens       *security.TokenProvider
	maxAttempts  int
	challengeTTL time.Duration
	events       telemetry.EventEmitter
	audit        audit.AuditLogger
	now          func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	userRepo UserRepo,
	identityRepo IdentityRepo,
	sessionRepo SessionRepo,
	challenges mfarepo.Repository,
	codes CodeSender,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	opts Options,
) *AuthService {
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = mfarepo.DefaultChallengeTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AuthService{
		userRepo:     userRepo,
		identityRepo: identityRepo,
		sessionRepo:  sessionRepo,
		challenges:   challenges,
		codes:        codes,
		hasher:       hasher,
		tokens:       tokens,
		maxAttempts:  opts.MaxAttempts,
		challengeTTL: opts.ChallengeTTL,
		events:       opts.Events,
		audit:        opts.Audit,
		now:          opts.Now,
	}
}

// Register creates a user and local identity. role may be empty (user) or creator; admins are never self-registered.
// Returns the created user; the caller logs in separately to obtain tokens.
func (s *AuthService) Register(ctx context.Context, email, password, name string, role userdomain.Role) (*userdomain.User, error) {
	email = NormalizeEmail(email)
	if role == "" {
		role = userdomain.RoleUser
	}
	f := fieldErrors{}
	checkEmail(f, email)
	checkPassword(f, password, MinPasswordLen)
	checkSignupRole(f, role)
	if err := f.err(); err != nil {
		return nil, err
	}
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	now := s.now().UTC()
	user := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Role:      role,
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	ident := &identitydomain.Identity{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hashed,
		CreatedAt:    now,
	}
	if err := s.userRepo.CreateWithIdentity(ctx, user, ident); err != nil {
		if errors.Is(err, userrepo.ErrEmailTaken) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	s.record(ctx, telemetrydomain.EventRegistered, user.ID, email, "", map[string]string{"role": string(role)})
	return user, nil
}

// Login checks email and password. Users with 2FA enabled get a fresh emailed code and no tokens;
// any earlier challenge for the same email is replaced. Everyone else gets a new session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	f := fieldErrors{}
	checkEmail(f, email)
	checkPassword(f, password, 1)
	if err := f.err(); err != nil {
		return nil, err
	}
	user, err := s.authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.record(ctx, telemetrydomain.EventLoginFailed, "", email, "", nil)
		}
		return nil, err
	}
	if user.TwoFactorEnabled {
		expiresAt, err := s.startChallenge(ctx, user)
		if err != nil {
			return nil, err
		}
		s.record(ctx, telemetrydomain.EventLoginChallenged, user.ID, email, "", nil)
		return &LoginResult{RequiresTwoFactor: true, ChallengeExpiresAt: expiresAt}, nil
	}
	res, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, telemetrydomain.EventLoginSucceeded, user.ID, email, res.SessionID, nil)
	return &LoginResult{Tokens: res}, nil
}

// authenticate returns the active user whose local password matches, or ErrInvalidCredentials.
func (s *AuthService) authenticate(ctx context.Context, email, password string) (*userdomain.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, ErrInvalidCredentials
	}
	ident, err := s.identityRepo.GetByUserAndProvider(ctx, user.ID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return nil, err
	}
	if ident == nil || ident.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(ident.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if s.hasher.NeedsRehash(ident.PasswordHash) {
		if hashed, err := s.hasher.Hash([]byte(password)); err == nil {
			if err := s.identityRepo.UpdatePasswordHash(ctx, ident.ID, hashed); err != nil {
				slog.WarnContext(ctx, "auth: password rehash failed", "user_id", user.ID, "error", err)
			}
		}
	}
	return user, nil
}

func (s *AuthService) startChallenge(ctx context.Context, user *userdomain.User) (time.Time, error) {
	code, err := mfa.GenerateCode()
	if err != nil {
		return time.Time{}, err
	}
	now := s.now().UTC()
	ch := &mfadomain.Challenge{
		Email:     user.Email,
		UserID:    user.ID,
		CodeHash:  mfa.HashCode(code),
		ExpiresAt: now.Add(s.challengeTTL),
		CreatedAt: now,
	}
	if err := s.challenges.Put(ctx, ch); err != nil {
		return time.Time{}, err
	}
	if s.codes == nil {
		_ = s.challenges.Delete(ctx, user.Email)
		return time.Time{}, ErrCodeDelivery
	}
	if err := s.codes.SendCode(ctx, user.Email, code); err != nil {
		_ = s.challenges.Delete(ctx, user.Email)
		slog.ErrorContext(ctx, "auth: send 2fa code failed", "user_id", user.ID, "error", err)
		return time.Time{}, fmt.Errorf("%w: %v", ErrCodeDelivery, err)
	}
	return ch.ExpiresAt, nil
}

// VerifyTwoFactor completes a challenged login. Every submission counts an attempt; a wrong code on
// the MaxAttempts-th attempt deletes the challenge and returns ErrTooManyAttempts. Expired challenges
// are deleted. A challenge issues at most one session.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, email, code string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	f := fieldErrors{}
	checkEmail(f, email)
	if !mfa.ValidCodeFormat(code) {
		f["verificationCode"] = "Code must be 6 digits"
	}
	if err := f.err(); err != nil {
		return nil, err
	}
	ch, err := s.challenges.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrInvalidCode
	}
	if ch.Expired(s.now()) {
		_ = s.challenges.Delete(ctx, email)
		return nil, ErrInvalidCode
	}
	// Attempts are counted before comparing: at most maxAttempts submissions reach the comparison.
	attempts, err := s.challenges.RecordAttempt(ctx, email)
	if err != nil {
		return nil, err
	}
	if attempts == 0 {
		return nil, ErrInvalidCode
	}
	if s.maxAttempts > 0 && attempts > s.maxAttempts {
		_ = s.challenges.Delete(ctx, email)
		return nil, ErrTooManyAttempts
	}
	if !mfa.CodeEqual(code, ch.CodeHash) {
		if s.maxAttempts > 0 && attempts == s.maxAttempts {
			_ = s.challenges.Delete(ctx, email)
			s.record(ctx, telemetrydomain.EventTwoFactorLocked, ch.UserID, email, "", nil)
			return nil, ErrTooManyAttempts
		}
		s.record(ctx, telemetrydomain.EventTwoFactorFailed, ch.UserID, email, "", nil)
		return nil, ErrInvalidCode
	}
	consumed, err := s.challenges.Consume(ctx, email, ch.CodeHash)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrInvalidCode
	}
	user, err := s.userRepo.GetByID(ctx, ch.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, ErrInvalidCredentials
	}
	res, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, telemetrydomain.EventTwoFactorPassed, user.ID, email, res.SessionID, nil)
	return res, nil
}

// issueSession creates a backend session and signs its first access and refresh tokens.
func (s *AuthService) issueSession(ctx context.Context, user *userdomain.User) (*AuthResult, error) {
	sessionID := uuid.New().String()
	pr := principalOf(user)
	refreshToken, jti, refreshExp, err := s.tokens.IssueRefresh(sessionID, pr)
	if err != nil {
		return nil, err
	}
	accessToken, _, accessExp, err := s.tokens.IssueAccess(sessionID, pr)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &sessiondomain.Session{
		ID:               sessionID,
		UserID:           user.ID,
		ExpiresAt:        refreshExp,
		LastSeenAt:       &now,
		IPAddress:        middleware.ClientIP(ctx),
		UserAgent:        middleware.UserAgent(ctx),
		RefreshJti:       jti,
		RefreshTokenHash: security.HashRefreshToken(refreshToken),
		CreatedAt:        now,
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresAt:        accessExp,
		RefreshExpiresAt: refreshExp,
		SessionID:        sessionID,
		User:             user,
	}, nil
}

// Refresh validates the refresh token, rotates it, and returns new tokens carrying the user's current role.
// Presenting a refresh token that was already rotated revokes every session of the user.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	info, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessionRepo.GetByID(ctx, info.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.UserID != info.Principal.ID || !sess.Active(s.now()) {
		return nil, ErrInvalidRefreshToken
	}
	if sess.RefreshJti != info.JTI {
		if err := s.sessionRepo.RevokeAllSessionsByUser(ctx, sess.UserID); err != nil {
			slog.ErrorContext(ctx, "auth: revoke after refresh reuse failed", "user_id", sess.UserID, "error", err)
		}
		s.record(ctx, telemetrydomain.EventRefreshReuse, sess.UserID, info.Principal.Email, sess.ID, nil)
		return nil, ErrRefreshTokenReuse
	}
	if sess.RefreshTokenHash != "" && !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.userRepo.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		_ = s.sessionRepo.Revoke(ctx, sess.ID)
		return nil, ErrInvalidRefreshToken
	}
	pr := principalOf(user)
	newRefresh, newJti, refreshExp, err := s.tokens.IssueRefresh(sess.ID, pr)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.UpdateRefreshToken(ctx, sess.ID, newJti, security.HashRefreshToken(newRefresh)); err != nil {
		return nil, err
	}
	_ = s.sessionRepo.UpdateLastSeen(ctx, sess.ID, s.now().UTC())
	accessToken, _, accessExp, err := s.tokens.IssueAccess(sess.ID, pr)
	if err != nil {
		return nil, err
	}
	s.record(ctx, telemetrydomain.EventTokenRefreshed, user.ID, user.Email, sess.ID, nil)
	return &AuthResult{
		AccessToken:      accessToken,
		RefreshToken:     newRefresh,
		ExpiresAt:        accessExp,
		RefreshExpiresAt: refreshExp,
		SessionID:        sess.ID,
		User:             user,
	}, nil
}

// Logout revokes the session identified by the refresh token or by the access token in context.
// If refreshToken is non-empty, validates it and revokes that session; an invalid token is a no-op.
// If refreshToken is empty and Authenticate put a session id in context, revokes that session.
// Otherwise no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	var sessionID, userID string
	if refreshToken != "" {
		info, err := s.tokens.VerifyRefresh(refreshToken)
		if err != nil {
			return nil
		}
		sessionID, userID = info.SessionID, info.Principal.ID
	} else {
		id, ok := middleware.GetIdentity(ctx)
		if !ok || id.SessionID == "" {
			return nil
		}
		sessionID, userID = id.SessionID, id.UserID
	}
	if err := s.sessionRepo.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.record(ctx, telemetrydomain.EventLoggedOut, userID, "", sessionID, nil)
	return nil
}

// Me returns the current profile of userID.
func (s *AuthService) Me(ctx context.Context, userID string) (*userdomain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ChangeRole sets userID's role and revokes all of their sessions, so the next tokens carry the new role.
// actorID is recorded in the audit trail.
func (s *AuthService) ChangeRole(ctx context.Context, actorID, userID string, role userdomain.Role) (*userdomain.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	previous := user.Role
	if previous != role {
		if err := s.userRepo.SetRole(ctx, userID, role); err != nil {
			return nil, err
		}
		if err := s.sessionRepo.RevokeAllSessionsByUser(ctx, userID); err != nil {
			return nil, err
		}
	}
	updated := *user
	updated.Role = role
	s.record(ctx, telemetrydomain.EventRoleChanged, userID, user.Email, "", map[string]string{
		"actor": actorID,
		"from":  string(previous),
		"to":    string(role),
	})
	return &updated, nil
}

// SetTwoFactor turns the emailed second factor on or off for userID.
func (s *AuthService) SetTwoFactor(ctx context.Context, userID string, enabled bool) (*userdomain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if err := s.userRepo.SetTwoFactor(ctx, userID, enabled); err != nil {
		return nil, err
	}
	updated := *user
	updated.TwoFactorEnabled = enabled
	s.record(ctx, telemetrydomain.EventTwoFactorToggled, userID, user.Email, "", map[string]string{
		"enabled": fmt.Sprintf("%t", enabled),
	})
	return &updated, nil
}

func principalOf(u *userdomain.User) security.Principal {
	return security.Principal{ID: u.ID, Email: u.Email, Role: u.Role}
}

// record emits an auth event and writes the matching audit entry. Both are best-effort.
func (s *AuthService) record(ctx context.Context, eventType, userID, email, sessionID string, meta map[string]string) {
	ip := middleware.ClientIP(ctx)
	if s.events != nil {
		telemetry.EmitAsync(s.events, ctx, &telemetrydomain.Event{
			ID:        uuid.New().String(),
			Type:      eventType,
			UserID:    userID,
			Email:     email,
			SessionID: sessionID,
			IP:        ip,
			Source:    "api",
			Metadata:  meta,
			CreatedAt: s.now().UTC(),
		})
	}
	if s.audit != nil {
		ar := audit.FromEvent(eventType)
		s.audit.LogEvent(ctx, userID, ar.Action, ar.Resource, formatMetadata(email, meta))
	}
}

func formatMetadata(email string, meta map[string]string) string {
	parts := make([]string, 0, len(meta)+1)
	if email != "" {
		parts = append(parts, "email="+email)
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+meta[k])
	}
	return strings.Join(parts, ",")
}
