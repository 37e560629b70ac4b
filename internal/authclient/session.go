package authclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chabaqa/backend/internal/authapi"
	"chabaqa/backend/internal/tokenstore"
)

// API is the subset of Client the Session uses.
type API interface {
	Register(ctx context.Context, req authapi.RegisterRequest) (*authapi.User, error)
	Login(ctx context.Context, email, password string) (*authapi.LoginResponse, error)
	VerifyTwoFactor(ctx context.Context, email, code string) (*authapi.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*authapi.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, accessToken string) (*authapi.User, error)
}

// Navigator moves the user interface to a path.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// State is the observable session state.
type State struct {
	User    *authapi.User
	Loading bool
	Err     error
}

// LoginResult reports whether a second factor is still needed.
type LoginResult struct {
	RequiresTwoFactor  bool
	ChallengeExpiresAt time.Time
}

// Session holds the signed-in user for one client. The mutex guards state only;
// concurrent calls are not de-duplicated.
type Session struct {
	api      API
	store    tokenstore.Store
	nav      Navigator
	homePath string

	mu    sync.Mutex
	state State
}

// NewSession starts in the loading state with no user. Call Init to resolve it.
func NewSession(api API, store tokenstore.Store, nav Navigator, homePath string) *Session {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	if homePath == "" {
		homePath = "/"
	}
	return &Session{api: api, store: store, nav: nav, homePath: homePath, state: State{Loading: true}}
}

// State returns a snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) User() *authapi.User {
	return s.State().User
}

func (s *Session) set(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}

// Init fetches the profile once and leaves the loading state.
func (s *Session) Init(ctx context.Context) error {
	err := s.FetchMe(ctx)
	s.set(func(st *State) { st.Loading = false })
	return err
}

// FetchMe loads the profile for the stored access token. Missing or rejected tokens
// leave the session signed out without an error.
func (s *Session) FetchMe(ctx context.Context) error {
	t, err := s.store.Load(ctx)
	if errors.Is(err, tokenstore.ErrNoTokens) || (err == nil && t.AccessToken == "") {
		s.set(func(st *State) { st.User, st.Err = nil, nil })
		return nil
	}
	if err != nil {
		s.set(func(st *State) { st.Err = err })
		return err
	}
	u, err := s.api.Me(ctx, t.AccessToken)
	if errors.Is(err, ErrUnauthenticated) {
		s.set(func(st *State) { st.User, st.Err = nil, nil })
		return nil
	}
	if err != nil {
		s.set(func(st *State) { st.Err = err })
		return err
	}
	s.set(func(st *State) { st.User, st.Err = u, nil })
	return nil
}

// Login runs the first factor. When a second factor is required no tokens are stored
// and the user stays nil.
func (s *Session) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if err := ValidateCredentials(email, password); err != nil {
		s.set(func(st *State) { st.Err = err })
		return LoginResult{}, err
	}
	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.set(func(st *State) { st.Err = err })
		return LoginResult{}, err
	}
	if res.RequiresTwoFactor {
		out := LoginResult{RequiresTwoFactor: true}
		if res.ChallengeExpiresAt != nil {
			out.ChallengeExpiresAt = *res.ChallengeExpiresAt
		}
		s.set(func(st *State) { st.User, st.Err = nil, nil })
		return out, nil
	}
	t := tokenstore.Tokens{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}
	if res.ExpiresAt != nil {
		t.ExpiresAt = *res.ExpiresAt
	}
	if res.RefreshExpiresAt != nil {
		t.RefreshExpiresAt = *res.RefreshExpiresAt
	}
	if err := s.store.Save(ctx, t); err != nil {
		s.set(func(st *State) { st.Err = err })
		return LoginResult{}, err
	}
	return LoginResult{}, s.FetchMe(ctx)
}

// VerifyTwoFactor completes a login that required a second factor.
func (s *Session) VerifyTwoFactor(ctx context.Context, email, code string) error {
	if err := ValidateCode(code); err != nil {
		s.set(func(st *State) { st.Err = err })
		return err
	}
	res, err := s.api.VerifyTwoFactor(ctx, email, code)
	if err != nil {
		s.set(func(st *State) { st.Err = err })
		return err
	}
	return s.adopt(ctx, res)
}

// Register creates the account and signs in with the same credentials.
func (s *Session) Register(ctx context.Context, req authapi.RegisterRequest) (LoginResult, error) {
	if err := ValidateCredentials(req.Email, req.Password); err != nil {
		s.set(func(st *State) { st.Err = err })
		return LoginResult{}, err
	}
	if _, err := s.api.Register(ctx, req); err != nil {
		s.set(func(st *State) { st.Err = err })
		return LoginResult{}, err
	}
	return s.Login(ctx, req.Email, req.Password)
}

// Refresh rotates the stored tokens. A rejected refresh token signs the session out locally.
func (s *Session) Refresh(ctx context.Context) error {
	t, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	res, err := s.api.Refresh(ctx, t.RefreshToken)
	if errors.Is(err, ErrUnauthenticated) {
		_ = s.store.Clear(ctx)
		s.set(func(st *State) { st.User, st.Err = nil, nil })
		return err
	}
	if err != nil {
		s.set(func(st *State) { st.Err = err })
		return err
	}
	return s.adopt(ctx, res)
}

func (s *Session) adopt(ctx context.Context, res *authapi.TokenResponse) error {
	t := tokenstore.Tokens{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		ExpiresAt:        res.ExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}
	if err := s.store.Save(ctx, t); err != nil {
		s.set(func(st *State) { st.Err = err })
		return err
	}
	if res.User == nil {
		return s.FetchMe(ctx)
	}
	s.set(func(st *State) { st.User, st.Err = res.User, nil })
	return nil
}

// Logout always ends signed out at the home path. Backend and storage failures are logged, not returned.
func (s *Session) Logout(ctx context.Context) {
	if t, err := s.store.Load(ctx); err == nil && t.RefreshToken != "" {
		if err := s.api.Logout(ctx, t.RefreshToken); err != nil {
			slog.DebugContext(ctx, "authclient: backend logout failed", "error", err)
		}
	}
	s.set(func(st *State) { st.User, st.Err = nil, nil })
	if err := s.store.Clear(ctx); err != nil {
		slog.WarnContext(ctx, "authclient: clear token store", "error", err)
	}
	s.nav.Navigate(s.homePath)
}
