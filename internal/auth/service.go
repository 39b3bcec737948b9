package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopcore.dev/internal/apperr"
)

// OTPVerifier checks the second factor of a login. It returns nil when the user has
// no active second factor or code is valid for it.
type OTPVerifier interface {
	VerifyLogin(ctx context.Context, userID, code string) error
}

// Service authenticates users and issues access tokens.
type Service struct {
	users  UserStore
	hasher *Hasher
	tokens *TokenProvider
	otp    OTPVerifier
	// dummyHash is compared on unknown usernames so they cost the same as a wrong password.
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithOTPVerifier enables the second factor check during Login.
func WithOTPVerifier(v OTPVerifier) ServiceOption {
	return func(s *Service) error {
		if v == nil {
			return errors.New("auth: otp verifier is nil")
		}
		s.otp = v
		return nil
	}
}

func NewService(users UserStore, hasher *Hasher, tokens *TokenProvider, opts ...ServiceOption) (*Service, error) {
	if users == nil || hasher == nil || tokens == nil {
		return nil, errors.New("auth: user store, hasher and token provider are required")
	}
	dummy, err := hasher.Hash(rand.Text())
	if err != nil {
		return nil, fmt.Errorf("auth: dummy digest: %w", err)
	}
	s := &Service{users: users, hasher: hasher, tokens: tokens, dummyHash: dummy}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Principal   Principal
}

// Login checks the credentials and, when configured, the one-time code before issuing a token.
func (s *Service) Login(ctx context.Context, username, password, otp string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("auth: load user: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	if s.otp != nil {
		if err := s.otp.VerifyLogin(ctx, user.ID, strings.TrimSpace(otp)); err != nil {
			return LoginResult{}, err
		}
	}

	principal := NewPrincipal(user)
	token, expiresAt, err := s.tokens.Issue(principal)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: token, ExpiresAt: expiresAt, Principal: principal}, nil
}

// Authenticate validates a bearer token and returns the principal it carries.
func (s *Service) Authenticate(token string) (Principal, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return Principal{}, err
	}
	return claims.Principal(), nil
}
