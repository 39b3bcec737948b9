package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTokenExpiry = 7 * 24 * time.Hour
	minSecretLength    = 32
)

// TokenConfig is the immutable signing configuration.
type TokenConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// Claims is the verified payload of an access token.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Principal returns the identity carried by the claims.
func (c *Claims) Principal() Principal {
	return Principal{ID: c.Subject, Username: c.Username, Roles: append([]string(nil), c.Roles...)}
}

// TokenProvider issues and validates HS256 bearer tokens. It keeps no per-token state,
// so tokens cannot be revoked before they expire.
type TokenProvider struct {
	secret []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption configures a TokenProvider.
type TokenOption func(*TokenProvider)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) TokenOption {
	return func(p *TokenProvider) {
		if now != nil {
			p.now = now
		}
	}
}

func NewTokenProvider(cfg TokenConfig, opts ...TokenOption) (*TokenProvider, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("auth: token secret must be at least %d bytes", minSecretLength)
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultTokenExpiry
	}
	p := &TokenProvider{
		secret: []byte(cfg.Secret),
		expiry: cfg.Expiry,
		issuer: strings.TrimSpace(cfg.Issuer),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Issue signs a token for principal and returns it with its expiry instant.
func (p *TokenProvider) Issue(principal Principal) (string, time.Time, error) {
	if strings.TrimSpace(principal.ID) == "" {
		return "", time.Time{}, errors.New("auth: principal id is required")
	}
	now := p.now().UTC()
	expiresAt := now.Add(p.expiry)
	claims := Claims{
		Username: principal.Username,
		Roles:    dedupeRoles(principal.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Validate verifies the signature and the validity window of raw. A token is rejected
// from its expiry instant onwards. Structural problems yield ErrTokenMalformed, every
// other rejection ErrTokenInvalid.
func (p *TokenProvider) Validate(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is missing", ErrTokenInvalid)
	}
	if claims.Roles == nil {
		claims.Roles = []string{}
	}
	return claims, nil
}
