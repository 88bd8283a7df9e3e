package shared

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrIdempotencyReplay indicates the key was already processed with the same request.
	ErrIdempotencyReplay = errors.New("idempotent request already processed")
	// ErrIdempotencyConflict indicates the key was reused for a different request.
	ErrIdempotencyConflict = fmt.Errorf("%w: idempotency key reused with a different request", ErrConflict)
)

// IdempotencyQuerier is satisfied by pgx.Tx and *pgxpool.Pool.
type IdempotencyQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ClaimIdempotencyKey records key for module. Run it inside the transaction
// that applies the request so a failed request leaves no claim behind.
// A previously claimed key yields ErrIdempotencyReplay when the fingerprint
// matches and ErrIdempotencyConflict otherwise.
func ClaimIdempotencyKey(ctx context.Context, q IdempotencyQuerier, key, module, fingerprint string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	tag, err := q.Exec(ctx, `INSERT INTO idempotency_keys (key, module, fingerprint, created_at)
VALUES ($1, $2, $3, $4) ON CONFLICT (key, module) DO NOTHING`, key, module, fingerprint, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var stored string
	if err := q.QueryRow(ctx, `SELECT fingerprint FROM idempotency_keys WHERE key=$1 AND module=$2`, key, module).Scan(&stored); err != nil {
		return err
	}
	if stored != fingerprint {
		return ErrIdempotencyConflict
	}
	return ErrIdempotencyReplay
}

// IdempotencyStore maintains the idempotency_keys table.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Cleanup removes entries older than retention and returns how many were removed.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	if olderThan <= 0 {
		return 0, errors.New("idempotency retention must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Fingerprint hashes the JSON encoding of parts into a stable request digest.
func Fingerprint(parts ...any) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range parts {
		_ = enc.Encode(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
