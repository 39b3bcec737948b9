package auth

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestProvider(t *testing.T, clock *fakeClock, expiry time.Duration) *TokenProvider {
	t.Helper()
	p, err := NewTokenProvider(TokenConfig{Secret: testSecret, Expiry: expiry, Issuer: "test-issuer"}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	return p
}

func TestTokenIssueAndValidate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p := newTestProvider(t, clock, time.Hour)

	principal := Principal{ID: "user-42", Username: "alice", Roles: []string{"ADMIN", "viewer", "ADMIN"}}
	token, expiresAt, err := p.Issue(principal)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expiresAt.Equal(clock.now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := p.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "user-42" || claims.Username != "alice" || claims.Issuer != "test-issuer" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !reflect.DeepEqual(claims.Roles, []string{"ADMIN", "viewer"}) {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti")
	}

	again, err := p.Validate(token)
	if err != nil {
		t.Fatalf("second Validate: %v", err)
	}
	if !reflect.DeepEqual(claims, again) {
		t.Fatalf("validation is not idempotent: %+v vs %+v", claims, again)
	}
	if got := again.Principal(); got.ID != principal.ID || got.Username != principal.Username {
		t.Fatalf("unexpected principal %+v", got)
	}
}

func TestTokenDefaultExpiryIsOneWeek(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p := newTestProvider(t, clock, 0)
	_, expiresAt, err := p.Issue(Principal{ID: "u"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got := expiresAt.Sub(clock.now); got != 168*time.Hour {
		t.Fatalf("default expiry %v", got)
	}
}

func TestTokenRejectedAtExpiryInstant(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p := newTestProvider(t, clock, time.Hour)
	token, expiresAt, err := p.Issue(Principal{ID: "u"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.now = expiresAt.Add(-time.Second)
	if _, err := p.Validate(token); err != nil {
		t.Fatalf("token should be valid one second before expiry: %v", err)
	}

	clock.now = expiresAt
	_, err = p.Validate(token)
	if !errors.Is(err, ErrTokenInvalid) || !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expiry rejection at the expiry instant, got %v", err)
	}
	if errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expiry must not be reported as a parse error")
	}
}

func TestTokenMalformedIsDistinct(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	p := newTestProvider(t, clock, time.Hour)
	for _, raw := range []string{"", "   ", "abc", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.%%%.sig"} {
		_, err := p.Validate(raw)
		if !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("Validate(%q) = %v, want ErrTokenMalformed", raw, err)
		}
	}
}

func TestTokenSignatureAndIssuerChecks(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p := newTestProvider(t, clock, time.Hour)
	token, _, err := p.Issue(Principal{ID: "u"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, _ := NewTokenProvider(TokenConfig{Secret: strings.Repeat("z", 32), Issuer: "test-issuer"}, WithClock(clock.Now))
	if _, err := other.Validate(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected signature rejection, got %v", err)
	}

	foreign, _ := NewTokenProvider(TokenConfig{Secret: testSecret, Issuer: "someone-else"}, WithClock(clock.Now))
	if _, err := foreign.Validate(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected issuer rejection, got %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := p.Validate(tampered); err == nil {
		t.Fatalf("tampered token accepted")
	}
}

func TestTokenRejectsOtherAlgorithms(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p := newTestProvider(t, clock, time.Hour)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u",
		Issuer:    "test-issuer",
		ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
	}}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := p.Validate(hs512); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected HS512 rejection, got %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := p.Validate(none); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected none rejection, got %v", err)
	}
}

func TestTokenRequiresExpiryAndSubject(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p := newTestProvider(t, clock, time.Hour)

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "u", Issuer: "test-issuer",
	}}).SignedString([]byte(testSecret))
	if _, err := p.Validate(noExp); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected missing exp rejection, got %v", err)
	}

	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer: "test-issuer", ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Minute)),
	}}).SignedString([]byte(testSecret))
	if _, err := p.Validate(noSub); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected missing subject rejection, got %v", err)
	}

	if _, _, err := p.Issue(Principal{}); err == nil {
		t.Fatalf("expected error issuing for an empty principal")
	}
}

func TestNewTokenProviderRequiresLongSecret(t *testing.T) {
	if _, err := NewTokenProvider(TokenConfig{Secret: "short"}); err == nil {
		t.Fatalf("expected error for short secret")
	}
}
