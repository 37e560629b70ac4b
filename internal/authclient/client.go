// Package authclient talks to the backend auth API and keeps the signed-in session for
// clients that are not browsers.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chabaqa/backend/internal/authapi"
	"chabaqa/backend/internal/envelope"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrUnauthenticated matches any *APIError with status 401.
	ErrUnauthenticated = errors.New("authclient: unauthenticated")
	// ErrConnection wraps transport failures and unreadable responses.
	ErrConnection = errors.New("authclient: connection error")
)

// APIError is an error envelope returned by the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthenticated && e.Status == http.StatusUnauthorized
}

type forwardedForKey struct{}

// WithForwardedFor returns a context whose backend calls name ip as the originating client
// in X-Forwarded-For. Servers relaying browser requests use it so the backend limits each browser.
func WithForwardedFor(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, forwardedForKey{}, ip)
}

// Client calls the backend endpoints. Every response goes through envelope.Decode.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) Register(ctx context.Context, req authapi.RegisterRequest) (*authapi.User, error) {
	var out authapi.User
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login returns tokens, or RequiresTwoFactor with no tokens.
func (c *Client) Login(ctx context.Context, email, password string) (*authapi.LoginResponse, error) {
	var out authapi.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", authapi.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyTwoFactor(ctx context.Context, email, code string) (*authapi.TokenResponse, error) {
	var out authapi.TokenResponse
	body := authapi.VerifyTwoFactorRequest{Email: email, VerificationCode: code}
	if err := c.do(ctx, http.MethodPost, "/auth/verify-2fa", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*authapi.TokenResponse, error) {
	var out authapi.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", authapi.RefreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the session bound to refreshToken. The backend treats unknown tokens as success.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", "", authapi.LogoutRequest{RefreshToken: refreshToken}, nil)
}

func (c *Client) Me(ctx context.Context, accessToken string) (*authapi.User, error) {
	var out authapi.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetTwoFactor(ctx context.Context, accessToken string, enabled bool) (*authapi.User, error) {
	var out authapi.User
	if err := c.do(ctx, http.MethodPut, "/auth/two-factor", accessToken, authapi.TwoFactorRequest{Enabled: enabled}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DevCode fetches a pending 2FA code from a backend running in dev OTP mode.
func (c *Client) DevCode(ctx context.Context, email string) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	if err := c.do(ctx, http.MethodGet, "/dev/2fa/code?email="+url.QueryEscape(email), "", nil, &out); err != nil {
		return "", err
	}
	return out.Code, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ip, _ := ctx.Value(forwardedForKey{}).(string); ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	apiErr, err := envelope.Decode(resp.Body, out)
	if err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Code: envelope.CodeInternal, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if apiErr != nil || resp.StatusCode >= 400 {
		e := &APIError{Status: resp.StatusCode}
		if apiErr != nil {
			e.Code, e.Message, e.Fields = apiErr.Code, apiErr.Message, apiErr.Fields
		}
		return e
	}
	return nil
}
