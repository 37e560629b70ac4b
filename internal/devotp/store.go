// Package devotp keeps plain second-factor codes by email for dev-only retrieval
// (GET /dev/2fa/code). It stands in for the mail sender when OTP_RETURN_TO_CLIENT is on.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds plain codes by email for dev-only retrieval. Not used in production.
type Store interface {
	// Put stores code for email until expiresAt, replacing any earlier code.
	Put(ctx context.Context, email, code string, expiresAt time.Time)
	// Get returns the code for email if present and not expired.
	Get(ctx context.Context, email string) (code string, ok bool)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store. It also satisfies the code sender used by the
// auth service, so dev mode can deliver codes without a mail provider.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	ttl  time.Duration
	nowF func() time.Time
}

// NewMemoryStore returns a dev code store whose SendCode entries live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		ttl:  ttl,
		nowF: time.Now,
	}
}

// Put stores code for email until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, email, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[email] = entry{code: code, expiresAt: expiresAt}
}

// Get returns the code for email if present and not expired. Expired entries are dropped.
func (s *MemoryStore) Get(ctx context.Context, email string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[email]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		if cur, still := s.m[email]; still && cur == e {
			delete(s.m, email)
		}
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}

// SendCode records code for email instead of mailing it.
func (s *MemoryStore) SendCode(ctx context.Context, email, code string) error {
	s.Put(ctx, email, code, s.nowF().Add(s.ttl))
	return nil
}
