// Package otp keeps short-lived one-time codes in Redis.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/dynaclean/dynaflow/internal/shared"
)

const (
	codeDigits     = 6
	fieldHash      = "hash"
	fieldAttempts  = "attempts"
	defaultTTL     = 10 * time.Minute
	defaultMaxTrys = 5
)

// countFailure bumps the attempt counter of a live code only, so a code that
// expired or was consumed meanwhile is not recreated without a TTL.
var countFailure = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
`)

var (
	// ErrInvalidCode indicates a wrong, expired or already used code.
	ErrInvalidCode = shared.Forbiddenf("invalid or expired code")
	// ErrTooManyAttempts indicates the code was locked after repeated failures.
	ErrTooManyAttempts = shared.Forbiddenf("too many failed attempts")
)

// Config tunes Store.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

// Store issues and verifies codes. Only a bcrypt hash of each code is kept.
type Store struct {
	client      redis.UniversalClient
	ttl         time.Duration
	maxAttempts int
	cost        int
}

// NewStore constructs Store.
func NewStore(client redis.UniversalClient, cfg Config) *Store {
	s := &Store{client: client, ttl: cfg.TTL, maxAttempts: cfg.MaxAttempts, cost: cfg.Cost}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxTrys
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	return s
}

func key(purpose, subject string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, subject)
}

// Issue creates a fresh code for subject, replacing any earlier one.
func (s *Store) Issue(ctx context.Context, purpose, subject string) (string, error) {
	if purpose == "" || subject == "" {
		return "", shared.Validationf("otp purpose and subject required")
	}
	code, err := generate()
	if err != nil {
		return "", fmt.Errorf("otp: generate: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return "", fmt.Errorf("otp: hash: %w", err)
	}
	k := key(purpose, subject)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, fieldHash, string(hash), fieldAttempts, 0)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("otp: store: %w", err)
	}
	return code, nil
}

// Check compares code against the pending one without consuming it. Failed
// comparisons count towards the lockout.
func (s *Store) Check(ctx context.Context, purpose, subject, code string) error {
	k := key(purpose, subject)
	fields, err := s.client.HGetAll(ctx, k).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("otp: load: %w", err)
	}
	hash, ok := fields[fieldHash]
	if !ok {
		return ErrInvalidCode
	}
	attempts, _ := strconv.Atoi(fields[fieldAttempts])
	if attempts >= s.maxAttempts {
		return ErrTooManyAttempts
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		n, err := countFailure.Run(ctx, s.client, []string{k}, fieldAttempts).Int()
		if err != nil {
			return fmt.Errorf("otp: count attempt: %w", err)
		}
		if n >= s.maxAttempts {
			return ErrTooManyAttempts
		}
		return ErrInvalidCode
	}
	return nil
}

// Consume removes the pending code. It fails with ErrInvalidCode when no code
// is pending.
func (s *Store) Consume(ctx context.Context, purpose, subject string) error {
	deleted, err := s.client.Del(ctx, key(purpose, subject)).Result()
	if err != nil {
		return fmt.Errorf("otp: consume: %w", err)
	}
	if deleted == 0 {
		return ErrInvalidCode
	}
	return nil
}

// Verify checks code and consumes it on success. A code is accepted at most once.
func (s *Store) Verify(ctx context.Context, purpose, subject, code string) error {
	if err := s.Check(ctx, purpose, subject, code); err != nil {
		return err
	}
	// A concurrent verification may have consumed it first.
	return s.Consume(ctx, purpose, subject)
}

// Revoke drops any pending code for subject.
func (s *Store) Revoke(ctx context.Context, purpose, subject string) error {
	return s.client.Del(ctx, key(purpose, subject)).Err()
}

func generate() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
