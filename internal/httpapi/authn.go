package httpapi

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"shopcore.dev/internal/apperr"
	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Terminal states of the authentication filter, exported as metric labels.
const (
	stateBypassed        = "bypassed"
	stateUnauthenticated = "unauthenticated"
	stateTokenValid      = "token_valid"
	stateRejected        = "rejected"
)

const (
	msgAuthRequired = "Full authentication is required to access this resource"
	msgInvalidToken = "Invalid or expired access token"
)

var errMissingToken = errors.New("missing bearer token")

// allowList matches request paths against exact paths, path.Match globs and "prefix/**".
type allowList struct {
	exact    map[string]struct{}
	globs    []string
	prefixes []string
}

func newAllowList(patterns []string) allowList {
	al := allowList{exact: make(map[string]struct{})}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.HasSuffix(p, "/**"):
			al.prefixes = append(al.prefixes, strings.TrimSuffix(p, "**"))
		case strings.ContainsAny(p, "*?["):
			al.globs = append(al.globs, p)
		default:
			al.exact[p] = struct{}{}
		}
	}
	return al
}

func (al allowList) matches(p string) bool {
	if _, ok := al.exact[p]; ok {
		return true
	}
	for _, prefix := range al.prefixes {
		if strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(prefix, "/") {
			return true
		}
	}
	for _, g := range al.globs {
		if ok, _ := path.Match(g, p); ok {
			return true
		}
	}
	return false
}

// authenticate validates the bearer token and stores the principal in the request
// context. Secured paths without a valid token are answered by the entry point.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || a.allow.matches(r.URL.Path) {
			obs.AuthOutcome(stateBypassed)
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.AuthOutcome(stateUnauthenticated)
			a.entryPoint(w, r, err, msgAuthRequired)
			return
		}

		principal, err := a.auth.Authenticate(token)
		if err != nil {
			obs.AuthOutcome(stateRejected)
			a.entryPoint(w, r, err, msgInvalidToken)
			return
		}

		obs.AuthOutcome(stateTokenValid)
		next.ServeHTTP(w, r.WithContext(auth.ContextWithSession(r.Context(), principal, token)))
	})
}

func (a *API) entryPoint(w http.ResponseWriter, r *http.Request, cause error, message string) {
	obs.Logger(r.Context()).Warn("unauthorized request", "method", r.Method, "path", r.URL.Path, "err", cause)
	writeUnauthorized(w, message)
}

// requireAuthenticated rejects requests that reached a handler without a principal,
// which happens when the path is on the allow-list.
func (a *API) requireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok || !a.evaluator.IsAuthenticated(p) {
			a.entryPoint(w, r, errMissingToken, msgAuthRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePermission guards a route with a permission code.
func (a *API) requirePermission(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return a.requireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := auth.PrincipalFromContext(r.Context())
			ok, err := a.evaluator.HasPermission(r.Context(), p, code)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !ok {
				obs.Logger(r.Context()).Info("access denied", "principal", p.ID, "permission", code)
				writeCode(w, http.StatusForbidden, apperr.CodeAccessDenied)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}
