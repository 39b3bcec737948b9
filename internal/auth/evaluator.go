package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"shopcore.dev/internal/obs"
)

const permissionCacheName = "role_permissions"

// Evaluator decides whether a principal holds a permission.
type Evaluator struct {
	resolver PermissionResolver
	pbac     bool
	cache    *expirable.LRU[string, map[string]struct{}]

	// mu orders Purge against cache fills; gen counts purges so a fill that
	// raced a purge is dropped instead of cached.
	mu  sync.Mutex
	gen uint64
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithPermissionCache caches resolved role sets for ttl, keeping at most size entries.
func WithPermissionCache(size int, ttl time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if size > 0 && ttl > 0 {
			e.cache = expirable.NewLRU[string, map[string]struct{}](size, nil, ttl)
		}
	}
}

// NewEvaluator returns an evaluator. With pbacEnabled false every authenticated
// principal is allowed everything.
func NewEvaluator(resolver PermissionResolver, pbacEnabled bool, opts ...EvaluatorOption) (*Evaluator, error) {
	if resolver == nil && pbacEnabled {
		return nil, errors.New("auth: permission resolver is required when PBAC is enabled")
	}
	e := &Evaluator{resolver: resolver, pbac: pbacEnabled}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// IsAuthenticated reports whether p identifies someone.
func (e *Evaluator) IsAuthenticated(p Principal) bool {
	return strings.TrimSpace(p.ID) != ""
}

// HasPermission reports whether the union of p's role permissions contains code.
func (e *Evaluator) HasPermission(ctx context.Context, p Principal, code string) (bool, error) {
	if !e.pbac {
		return true, nil
	}
	if len(p.Roles) == 0 {
		return false, nil
	}
	perms, err := e.permissionsFor(ctx, p.Roles)
	if err != nil {
		return false, err
	}
	_, ok := perms[code]
	return ok, nil
}

// Purge drops cached role resolutions after role or permission changes.
func (e *Evaluator) Purge() {
	if e.cache == nil {
		return
	}
	e.mu.Lock()
	e.gen++
	e.cache.Purge()
	e.mu.Unlock()
}

func (e *Evaluator) generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

func (e *Evaluator) permissionsFor(ctx context.Context, roles []string) (map[string]struct{}, error) {
	sorted := slices.Clone(roles)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	key := strings.Join(sorted, "\x00")

	if e.cache != nil {
		if perms, ok := e.cache.Get(key); ok {
			obs.CacheLookup(permissionCacheName, true)
			return perms, nil
		}
		obs.CacheLookup(permissionCacheName, false)
	}

	var gen uint64
	if e.cache != nil {
		gen = e.generation()
	}
	codes, err := e.resolver.PermissionCodesForRoles(ctx, sorted)
	if err != nil {
		return nil, fmt.Errorf("auth: resolve permissions: %w", err)
	}
	perms := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		perms[c] = struct{}{}
	}
	if e.cache != nil {
		e.mu.Lock()
		if e.gen == gen {
			e.cache.Add(key, perms)
		}
		e.mu.Unlock()
	}
	return perms, nil
}
