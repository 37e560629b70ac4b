package repository

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chabaqa/backend/internal/mfa/domain"
)

// exerciseRepository runs the behaviour every challenge store must share.
func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	email := "repo-test@chabaqa.io"
	_ = repo.Delete(ctx, email)

	got, err := repo.Get(ctx, email)
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if got != nil {
		t.Fatalf("Get missing = %+v, want nil", got)
	}
	if n, err := repo.RecordAttempt(ctx, email); err != nil || n != 0 {
		t.Fatalf("RecordAttempt missing = %d, %v; want 0, nil", n, err)
	}
	if ok, err := repo.Consume(ctx, email, "h1"); err != nil || ok {
		t.Fatalf("Consume missing = %v, %v; want false, nil", ok, err)
	}

	c := &domain.Challenge{Email: email, UserID: "u1", CodeHash: "h1", ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	if err := repo.Put(ctx, c); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err = repo.Get(ctx, email)
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.UserID != "u1" || got.CodeHash != "h1" || got.Attempts != 0 || !got.ExpiresAt.Equal(c.ExpiresAt) {
		t.Errorf("Get = %+v", got)
	}

	for want := 1; want <= 2; want++ {
		n, err := repo.RecordAttempt(ctx, email)
		if err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
		if n != want {
			t.Errorf("RecordAttempt = %d, want %d", n, want)
		}
	}

	// A new challenge for the same email replaces the old one and resets attempts.
	if err := repo.Put(ctx, &domain.Challenge{Email: email, UserID: "u1", CodeHash: "h2", ExpiresAt: now.Add(time.Minute), CreatedAt: now}); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	got, _ = repo.Get(ctx, email)
	if got == nil || got.CodeHash != "h2" || got.Attempts != 0 {
		t.Errorf("after replace Get = %+v", got)
	}

	if ok, err := repo.Consume(ctx, email, "h1"); err != nil || ok {
		t.Fatalf("Consume stale hash = %v, %v; want false, nil", ok, err)
	}
	if got, _ := repo.Get(ctx, email); got == nil {
		t.Fatal("Consume with stale hash removed the challenge")
	}
	if ok, err := repo.Consume(ctx, email, "h2"); err != nil || !ok {
		t.Fatalf("Consume = %v, %v; want true, nil", ok, err)
	}
	if ok, _ := repo.Consume(ctx, email, "h2"); ok {
		t.Error("second Consume succeeded")
	}

	_ = repo.Put(ctx, &domain.Challenge{Email: email, UserID: "u1", CodeHash: "h3", ExpiresAt: now.Add(time.Minute), CreatedAt: now})
	if err := repo.Delete(ctx, email); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := repo.Get(ctx, email); got != nil {
		t.Errorf("after Delete Get = %+v, want nil", got)
	}
	if err := repo.Delete(ctx, email); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())
}

func TestMemoryRepository_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.Put(ctx, &domain.Challenge{Email: "a@b.com", CodeHash: "h"})
	got, _ := repo.Get(ctx, "a@b.com")
	got.Attempts = 99
	again, _ := repo.Get(ctx, "a@b.com")
	if again.Attempts != 0 {
		t.Errorf("mutating returned challenge leaked into store: attempts=%d", again.Attempts)
	}
}

func TestMemoryRepository_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.Put(ctx, &domain.Challenge{Email: "a@b.com", CodeHash: "h"})

	var wg sync.WaitGroup
	var consumed atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := repo.Consume(ctx, "a@b.com", "h"); ok {
				consumed.Add(1)
			}
		}()
	}
	wg.Wait()
	if n := consumed.Load(); n != 1 {
		t.Errorf("consumed %d times, want 1", n)
	}
}

func TestRedisRepository(t *testing.T) {
	url := os.Getenv("CHABAQA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHABAQA_TEST_REDIS_URL not set")
	}
	client, err := NewRedisClient(context.Background(), url)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()
	exerciseRepository(t, NewRedisRepository(client))
}

func TestRedisRepository_ExpiredPutDeletes(t *testing.T) {
	url := os.Getenv("CHABAQA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHABAQA_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()
	repo := NewRedisRepository(client)
	if err := repo.Put(ctx, &domain.Challenge{Email: "old@chabaqa.io", ExpiresAt: time.Now().Add(-time.Second)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, _ := repo.Get(ctx, "old@chabaqa.io"); got != nil {
		t.Errorf("expired challenge stored: %+v", got)
	}
}

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("CHABAQA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CHABAQA_TEST_DATABASE_URL not set")
	}
	db := openTestDB(t, dsn)
	_, err := db.Exec(`INSERT INTO users (id, email, created_at, updated_at) VALUES ('u1', 'u1@chabaqa.io', now(), now()) ON CONFLICT DO NOTHING`)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	exerciseRepository(t, NewPostgresRepository(db))
}
