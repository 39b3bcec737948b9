// Package memory keeps every record in process memory. It backs development runs
// without a database and the HTTP tests.
package memory

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/commerce"
	"shopcore.dev/internal/mfa"
	"shopcore.dev/internal/paging"
)

type userRecord struct {
	user    auth.User
	roleIDs []string
}

type roleRecord struct {
	role    auth.Role
	permIDs []string
}

// Store implements auth.Directory, mfa.SecretStore and commerce.Repository with
// in-process concurrency safety.
type Store struct {
	mu sync.RWMutex

	users   map[string]*userRecord
	roles   map[string]*roleRecord
	perms   map[string]auth.Permission
	secrets map[string]mfa.Secret

	customers map[string]commerce.Customer
	addresses map[string]commerce.Address // customer id -> address
	orders    map[string]commerce.Order
	lineItems map[string]commerce.LineItem

	now func() time.Time
}

var (
	_ auth.Directory      = (*Store)(nil)
	_ mfa.SecretStore     = (*Store)(nil)
	_ commerce.Repository = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:     make(map[string]*userRecord),
		roles:     make(map[string]*roleRecord),
		perms:     make(map[string]auth.Permission),
		secrets:   make(map[string]mfa.Secret),
		customers: make(map[string]commerce.Customer),
		addresses: make(map[string]commerce.Address),
		orders:    make(map[string]commerce.Order),
		lineItems: make(map[string]commerce.LineItem),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// sortedPage orders values by id and cuts the requested window.
func sortedPage[T any](values []T, id func(T) string, req paging.Request) ([]T, int) {
	slices.SortFunc(values, func(a, b T) int { return cmp.Compare(id(a), id(b)) })
	return paging.Slice(values, req), len(values)
}
