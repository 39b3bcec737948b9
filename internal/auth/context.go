package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// session is what the authentication filter leaves on the request context.
type session struct {
	principal Principal
	token     string
}

type sessionKey struct{}

// ContextWithPrincipal attaches an authenticated principal with no bearer token,
// as happens right after a successful login.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, sessionKey{}, &session{principal: p})
}

// ContextWithSession attaches the principal together with the bearer token it was
// authenticated from.
func ContextWithSession(ctx context.Context, p Principal, token string) context.Context {
	return context.WithValue(ctx, sessionKey{}, &session{principal: p, token: token})
}

func sessionFrom(ctx context.Context) *session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sessionKey{}).(*session)
	return s
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	s := sessionFrom(ctx)
	if s == nil {
		return Principal{}, false
	}
	return s.principal, true
}

// TokenFingerprint identifies the bearer token of the current session in logs
// without exposing it. Empty when the request carried no token.
func TokenFingerprint(ctx context.Context) string {
	s := sessionFrom(ctx)
	if s == nil || s.token == "" {
		return ""
	}
	return Fingerprint(s.token)
}

// Fingerprint is the first 16 hex digits of the SHA-256 of token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
