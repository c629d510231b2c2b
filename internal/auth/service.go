package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Mailer queues password reset work. EnqueueForgotPassword hands a raw
// request to the worker; EnqueuePasswordReset queues the outgoing email.
type Mailer interface {
	EnqueueForgotPassword(ctx context.Context, email string) error
	EnqueuePasswordReset(ctx context.Context, to, link string) error
}

// Config tunes the auth service.
type Config struct {
	ResetTokenTTL time.Duration
	ResetURLBase  string
	BcryptCost    int
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	issuer *TokenIssuer
	mailer Mailer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	random io.Reader

	// dummyHash stands in for the hash of a missing or inactive user.
	dummyHash []byte
	compare   func(hash, password []byte) error
}

// NewService constructs a new Service.
func NewService(repo Repository, issuer *TokenIssuer, mailer Mailer, cfg Config, logger *slog.Logger) *Service {
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = DefaultResetTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("ganacsi-no-such-user"), cfg.BcryptCost)
	if err != nil {
		logger.Warn("generate dummy password hash", slog.Any("error", err))
	}
	return &Service{
		repo:      repo,
		issuer:    issuer,
		mailer:    mailer,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		random:    rand.Reader,
		dummyHash: dummy,
		compare:   bcrypt.CompareHashAndPassword,
	}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = s.compare(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		_ = s.compare(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := s.compare([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.issuer.Issue(*user)
}

// ForgotPassword queues a reset request for email. Every address takes the
// same path here; the lookup happens in IssueResetToken on the worker.
func (s *Service) ForgotPassword(ctx context.Context, email string) {
	email = strings.TrimSpace(email)
	if email == "" || s.mailer == nil {
		return
	}
	if err := s.mailer.EnqueueForgotPassword(ctx, email); err != nil {
		s.logger.Error("enqueue forgot password", slog.Any("error", err))
	}
}

// IssueResetToken stores a reset token and queues the email when the address
// belongs to an active user. Unknown and inactive addresses are ignored.
func (s *Service) IssueResetToken(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("forgot password lookup: %w", err)
	}
	if !user.IsActive {
		return nil
	}

	token, err := s.newToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.repo.CreateResetToken(ctx, ResetToken{UserID: user.ID, Token: token, CreatedAt: s.now()}); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if s.mailer == nil {
		return errors.New("reset token stored but no mailer configured")
	}
	if err := s.mailer.EnqueuePasswordReset(ctx, user.Email, s.resetLink(token)); err != nil {
		return fmt.Errorf("enqueue reset email: %w", err)
	}
	s.logger.Info("reset token issued", slog.Int64("user_id", user.ID))
	return nil
}

// ResetPassword consumes a reset token and sets a new password. Expired
// tokens are deleted on the attempt.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	record, err := s.repo.FindResetToken(ctx, token)
	if err != nil {
		return err
	}
	if record.Expired(s.now(), s.cfg.ResetTokenTTL) {
		if err := s.repo.DeleteResetToken(ctx, token); err != nil {
			s.logger.Warn("delete expired reset token", slog.Any("error", err))
		}
		return ErrInvalidResetToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.ConsumeResetToken(ctx, *record, string(hash))
}

// PurgeExpiredResetTokens removes tokens past their TTL.
func (s *Service) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	return s.repo.PurgeResetTokens(ctx, s.now().Add(-s.cfg.ResetTokenTTL))
}

func (s *Service) newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) resetLink(token string) string {
	base := s.cfg.ResetURLBase
	if base == "" {
		return token
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}
