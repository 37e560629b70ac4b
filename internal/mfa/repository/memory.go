package repository

import (
	"context"
	"sync"

	"chabaqa/backend/internal/mfa/domain"
)

// MemoryRepository keeps challenges in process memory. Suitable for a single backend
// instance and for tests; challenges are lost on restart.
type MemoryRepository struct {
	mu         sync.Mutex
	challenges map[string]domain.Challenge
}

// NewMemoryRepository returns an empty in-memory challenge repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{challenges: make(map[string]domain.Challenge)}
}

func (r *MemoryRepository) Put(_ context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challenges[c.Email] = *c
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, email string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[email]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *MemoryRepository) RecordAttempt(_ context.Context, email string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[email]
	if !ok {
		return 0, nil
	}
	c.Attempts++
	r.challenges[email] = c
	return c.Attempts, nil
}

func (r *MemoryRepository) Consume(_ context.Context, email, codeHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[email]
	if !ok || c.CodeHash != codeHash {
		return false, nil
	}
	delete(r.challenges, email)
	return true, nil
}

func (r *MemoryRepository) Delete(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.challenges, email)
	return nil
}
