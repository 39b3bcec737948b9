package auth

import "strings"

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID       string
	Username string
	Roles    []string
}

// NewPrincipal builds the principal for a stored user.
func NewPrincipal(u User) Principal {
	return Principal{ID: u.ID, Username: u.Username, Roles: dedupeRoles(u.RoleNames())}
}

func dedupeRoles(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
