package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ganacsi/ganacsi/internal/platform/db"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateResetToken(ctx context.Context, token ResetToken) error
	FindResetToken(ctx context.Context, token string) (*ResetToken, error)
	DeleteResetToken(ctx context.Context, token string) error
	ConsumeResetToken(ctx context.Context, token ResetToken, passwordHash string) error
	PurgeResetTokens(ctx context.Context, createdBefore time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_id, email, password_hash, role, is_active, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)`, email).
		Scan(&u.ID, &u.CompanyID, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

// CreateResetToken stores a new reset token.
func (r *PGRepository) CreateResetToken(ctx context.Context, token ResetToken) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO password_reset_tokens (user_id, token, created_at) VALUES ($1, $2, $3)`,
		token.UserID, token.Token, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

// FindResetToken loads a reset token by value.
func (r *PGRepository) FindResetToken(ctx context.Context, token string) (*ResetToken, error) {
	var t ResetToken
	err := r.pool.QueryRow(ctx, `SELECT user_id, token, created_at FROM password_reset_tokens WHERE token = $1`, token).
		Scan(&t.UserID, &t.Token, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidResetToken
		}
		return nil, err
	}
	return &t, nil
}

// DeleteResetToken removes a token by value.
func (r *PGRepository) DeleteResetToken(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE token = $1`, token)
	return err
}

// ConsumeResetToken deletes the token and sets the new password hash in one
// transaction. A token already consumed by a concurrent request is rejected.
func (r *PGRepository) ConsumeResetToken(ctx context.Context, token ResetToken, passwordHash string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1 AND token = $2`, token.UserID, token.Token)
		if err != nil {
			return fmt.Errorf("delete reset token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInvalidResetToken
		}
		tag, err = tx.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, token.UserID, passwordHash)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// PurgeResetTokens deletes tokens created before the cutoff.
func (r *PGRepository) PurgeResetTokens(ctx context.Context, createdBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE created_at < $1`, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("purge reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
