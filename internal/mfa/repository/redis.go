package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"chabaqa/backend/internal/mfa/domain"
)

const defaultRedisPrefix = "chabaqa:2fa:"

// recordAttemptScript increments attempts only on an existing key so a late attempt
// code cannot resurrect an expired challenge without a TTL.
var recordAttemptScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("HINCRBY", KEYS[1], "attempts", 1)
end
return 0
`)

var consumeScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "code_hash") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRepository stores each challenge as a hash whose key expires with the challenge.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisRepository returns a Redis-backed challenge repository.
func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client, prefix: defaultRedisPrefix, now: time.Now}
}

// NewRedisClient parses a redis:// URL and returns a connected client.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (r *RedisRepository) key(email string) string {
	return r.prefix + email
}

// Put replaces the challenge for c.Email. An already expired challenge is deleted instead.
func (r *RedisRepository) Put(ctx context.Context, c *domain.Challenge) error {
	ttl := c.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.Delete(ctx, c.Email)
	}
	key := r.key(c.Email)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"user_id", c.UserID,
			"code_hash", c.CodeHash,
			"attempts", c.Attempts,
			"expires_at", c.ExpiresAt.UTC().Format(time.RFC3339Nano),
			"created_at", c.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		p.PExpire(ctx, key, ttl)
		return nil
	})
	return err
}

// Get returns the challenge for email, or nil if the key is absent or expired.
func (r *RedisRepository) Get(ctx context.Context, email string) (*domain.Challenge, error) {
	vals, err := r.client.HGetAll(ctx, r.key(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	attempts, _ := strconv.Atoi(vals["attempts"])
	expiresAt, err := time.Parse(time.RFC3339Nano, vals["expires_at"])
	if err != nil {
		return nil, err
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, vals["created_at"])
	return &domain.Challenge{
		Email:     email,
		UserID:    vals["user_id"],
		CodeHash:  vals["code_hash"],
		Attempts:  attempts,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}, nil
}

// RecordAttempt increments attempts on an existing challenge.
func (r *RedisRepository) RecordAttempt(ctx context.Context, email string) (int, error) {
	n, err := recordAttemptScript.Run(ctx, r.client, []string{r.key(email)}).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Consume deletes the challenge hash in one script call when code_hash matches.
func (r *RedisRepository) Consume(ctx context.Context, email, codeHash string) (bool, error) {
	n, err := consumeScript.Run(ctx, r.client, []string{r.key(email)}, codeHash).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes the challenge for email.
func (r *RedisRepository) Delete(ctx context.Context, email string) error {
	return r.client.Del(ctx, r.key(email)).Err()
}
