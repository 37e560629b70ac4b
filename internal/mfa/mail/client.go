// Package mail delivers second-factor codes through a transactional mail HTTP API.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout = 15 * time.Second
	defaultSubject = "Your Chabaqa verification code"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("mail: API key not configured")

// Client sends verification codes by POSTing a JSON message to the mail API.
type Client struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewClient returns a client that uses the given API key, endpoint, and From address.
func NewClient(apiKey, baseURL, sender string) *Client {
	return &Client{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Sender:  sender,
		HTTPClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// SendCode mails the 6-digit code to email. The code is never logged.
func (c *Client) SendCode(ctx context.Context, email, code string) error {
	if c.APIKey == "" {
		return ErrNotConfigured
	}
	raw, err := json.Marshal(message{
		From:    c.Sender,
		To:      email,
		Subject: defaultSubject,
		Text:    fmt.Sprintf("Your verification code is %s. It expires in a few minutes. If you did not try to sign in, ignore this email.", code),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
