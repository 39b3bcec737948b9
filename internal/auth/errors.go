package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("auth: bad credentials")
	// ErrTokenMalformed marks a bearer token that could not be parsed at all.
	ErrTokenMalformed = errors.New("auth: malformed token")
	// ErrTokenInvalid marks a parsed token that failed signature, expiry or issuer checks.
	ErrTokenInvalid = errors.New("auth: invalid token")
)
