package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ganacsi/ganacsi/internal/platform/httpx"
)

// IdempotencyKey identifies one client request within a tenant. Fingerprint
// digests the request body so a reused key with a different body is refused.
type IdempotencyKey struct {
	CompanyID   int64
	Module      string
	Key         string
	Fingerprint string
}

func (k IdempotencyKey) valid() bool {
	return k.CompanyID > 0 && k.Key != "" && k.Module != ""
}

// IdempotencyStore persists processed request keys per tenant and module.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

var (
	// ErrIdempotencyConflict indicates the key is held by a request still in flight.
	ErrIdempotencyConflict = fmt.Errorf("%w: idempotent request already in progress", httpx.ErrDuplicate)
	// ErrIdempotencyMismatch indicates the key was used before with another payload.
	ErrIdempotencyMismatch = fmt.Errorf("%w: idempotency key reused with a different payload", httpx.ErrDuplicate)
)

const uniqueViolation = "23505"

// Reserve claims k. When an earlier request with the same key and payload
// already completed, its reference id is returned with replay set.
func (s *IdempotencyStore) Reserve(ctx context.Context, k IdempotencyKey) (refID int64, replay bool, err error) {
	if s == nil {
		return 0, false, errors.New("idempotency store not initialised")
	}
	if !k.valid() {
		return 0, false, errors.New("idempotency company, key and module required")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (company_id, key, module, fingerprint, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		k.CompanyID, k.Key, k.Module, k.Fingerprint, time.Now())
	if err == nil {
		return 0, false, nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return 0, false, fmt.Errorf("reserve idempotency key: %w", err)
	}

	var (
		ref         *int64
		fingerprint string
	)
	err = s.pool.QueryRow(ctx, `
		SELECT ref_id, fingerprint FROM idempotency_keys
		WHERE company_id = $1 AND key = $2 AND module = $3`,
		k.CompanyID, k.Key, k.Module).Scan(&ref, &fingerprint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, ErrIdempotencyConflict
		}
		return 0, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if fingerprint != k.Fingerprint {
		return 0, false, ErrIdempotencyMismatch
	}
	if ref == nil {
		return 0, false, ErrIdempotencyConflict
	}
	return *ref, true, nil
}

// Complete stores the id of the resource produced under k.
func (s *IdempotencyStore) Complete(ctx context.Context, k IdempotencyKey, refID int64) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE idempotency_keys SET ref_id = $4
		WHERE company_id = $1 AND key = $2 AND module = $3`,
		k.CompanyID, k.Key, k.Module, refID)
	return err
}

// Release removes k so a failed request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, k IdempotencyKey) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE company_id = $1 AND key = $2 AND module = $3`,
		k.CompanyID, k.Key, k.Module)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
