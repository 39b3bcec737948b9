// Package ids generates the identifiers of every stored entity.
package ids

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New returns a ULID. ulid.Make draws from a shared monotonic source, so ids minted
// in the same millisecond still sort in creation order.
func New() string {
	return ulid.Make().String()
}

// Ensure keeps a client supplied identifier and generates one otherwise.
func Ensure(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return New()
}

// Valid reports whether id has the shape of an identifier produced by New.
func Valid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
