package mfa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopcore.dev/internal/apperr"
)

// Secret is a user's TOTP shared secret. It is pending until the first valid code.
type Secret struct {
	UserID    string
	Secret    string
	Digits    int
	Period    int
	Enabled   bool
	CreatedAt time.Time
}

// SecretStore persists one secret per user.
type SecretStore interface {
	GetMFASecret(ctx context.Context, userID string) (Secret, error)
	// SaveMFASecret inserts or replaces the user's secret.
	SaveMFASecret(ctx context.Context, s Secret) error
	EnableMFASecret(ctx context.Context, userID string) error
	DeleteMFASecret(ctx context.Context, userID string) error
}

// Service runs enrollment, activation and login verification.
type Service struct {
	store       SecretStore
	enroller    *Enroller
	discrepancy int
	now         func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithNow overrides the clock used for code checks.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store SecretStore, enroller *Enroller, discrepancy int, opts ...Option) (*Service, error) {
	if store == nil || enroller == nil {
		return nil, errors.New("mfa: store and enroller are required")
	}
	if discrepancy < 0 {
		return nil, fmt.Errorf("mfa: discrepancy must not be negative, got %d", discrepancy)
	}
	s := &Service{store: store, enroller: enroller, discrepancy: discrepancy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BeginEnrollment stores a pending secret for userID and returns it for display.
// An already active secret must be disabled first.
func (s *Service) BeginEnrollment(ctx context.Context, userID, accountName, channel, encoding string) (Enrollment, error) {
	current, err := s.store.GetMFASecret(ctx, userID)
	switch {
	case err == nil && current.Enabled:
		return Enrollment{}, fmt.Errorf("%w: multi-factor authentication is already enabled", apperr.ErrConflict)
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return Enrollment{}, err
	}

	enrollment, err := s.enroller.Enroll(accountName, channel, encoding)
	if err != nil {
		return Enrollment{}, err
	}
	secret := Secret{
		UserID:    userID,
		Secret:    enrollment.Secret,
		Digits:    enrollment.Digits,
		Period:    enrollment.Period,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveMFASecret(ctx, secret); err != nil {
		return Enrollment{}, err
	}
	return enrollment, nil
}

// Activate enables the pending secret once code verifies against it.
func (s *Service) Activate(ctx context.Context, userID, code string) error {
	secret, err := s.store.GetMFASecret(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.NotFound("mfa enrollment", userID)
		}
		return err
	}
	if err := s.check(secret, code); err != nil {
		return err
	}
	if secret.Enabled {
		return nil
	}
	return s.store.EnableMFASecret(ctx, userID)
}

// Disable deletes the user's secret.
func (s *Service) Disable(ctx context.Context, userID string) error {
	err := s.store.DeleteMFASecret(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound("mfa enrollment", userID)
	}
	return err
}

// VerifyLogin requires a valid code from users with an active secret.
func (s *Service) VerifyLogin(ctx context.Context, userID, code string) error {
	secret, err := s.store.GetMFASecret(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("mfa: load secret: %w", err)
	}
	if !secret.Enabled {
		return nil
	}
	return s.check(secret, code)
}

func (s *Service) check(secret Secret, code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrMissingOTP
	}
	engine, err := NewEngine(Settings{Digits: secret.Digits, Period: secret.Period, Discrepancy: s.discrepancy})
	if err != nil {
		return newError(CodeFailedToGenerateOTP, err)
	}
	return engine.Check(secret.Secret, code, s.now())
}
