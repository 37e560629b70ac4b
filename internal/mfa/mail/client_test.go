package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("key", "https://mail.example/send", "no-reply@chabaqa.io")
	if c.HTTPClient == nil {
		t.Fatal("HTTPClient should be set")
	}
	if c.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.HTTPClient.Timeout, defaultTimeout)
	}
}

func TestSendCode_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var m message
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if m.To != "a@b.com" || m.From != "no-reply@chabaqa.io" {
			t.Errorf("message = %+v", m)
		}
		if !strings.Contains(m.Text, "123456") {
			t.Errorf("text does not contain code: %q", m.Text)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	c := NewClient("test-key", server.URL, "no-reply@chabaqa.io")
	if err := c.SendCode(context.Background(), "a@b.com", "123456"); err != nil {
		t.Fatalf("SendCode: %v", err)
	}
}

func TestSendCode_NoAPIKey(t *testing.T) {
	c := NewClient("", "http://unused", "x")
	if err := c.SendCode(context.Background(), "a@b.com", "123456"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("want ErrNotConfigured, got %v", err)
	}
}

func TestSendCode_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient("k", server.URL, "x")
	err := c.SendCode(context.Background(), "a@b.com", "123456")
	if err == nil {
		t.Fatal("SendCode should fail on 429")
	}
	if !strings.Contains(err.Error(), "status=429") {
		t.Errorf("error = %q, want status=429", err.Error())
	}
}

func TestSendCode_ConnectionError(t *testing.T) {
	c := NewClient("k", "http://127.0.0.1:1", "x")
	if err := c.SendCode(context.Background(), "a@b.com", "123456"); err == nil {
		t.Fatal("SendCode should fail when the API is unreachable")
	}
}
