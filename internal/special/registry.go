// Package special provides the resolvers behind "special_XX" assets: events
// such as Easter whose dates move from year to year.
//
// A Registry maps each two-letter id to a resolver. It is filled once at
// startup from compiled-in built-ins and from YAML definitions found in the
// special-cases folder, and is only read afterwards.
package special

import (
	"errors"
	"fmt"
	"sort"

	"iconcal/internal/asset"
)

var (
	// ErrInvalidID is returned for ids that are not exactly two ASCII letters.
	ErrInvalidID = errors.New("special case id must be two letters")

	// ErrDuplicateID is returned when an id is registered twice.
	ErrDuplicateID = errors.New("special case id already registered")

	// ErrInvalidDefinition is returned for definitions that fail validation.
	ErrInvalidDefinition = errors.New("invalid special case definition")
)

// Registry is a read-only-after-startup map of special-case resolvers.
type Registry struct {
	resolvers map[string]asset.SpecialCaseResolver
	origins   map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		resolvers: make(map[string]asset.SpecialCaseResolver),
		origins:   make(map[string]string),
	}
}

// Register adds a resolver under id. origin describes where it came from
// (a file path or "builtin") and only shows up in errors and logs.
func (r *Registry) Register(id, origin string, res asset.SpecialCaseResolver) error {
	if !ValidID(id) {
		return fmt.Errorf("special: register %q: %w", id, ErrInvalidID)
	}
	if res == nil {
		return fmt.Errorf("special: register %s: nil resolver", id)
	}
	if existing, ok := r.origins[id]; ok {
		return fmt.Errorf("special: register %s from %s (already from %s): %w", id, origin, existing, ErrDuplicateID)
	}
	r.resolvers[id] = res
	r.origins[id] = origin
	return nil
}

// Lookup implements asset.SpecialCaseRegistry. Ids match exactly.
func (r *Registry) Lookup(id string) (asset.SpecialCaseResolver, bool) {
	if r == nil {
		return nil, false
	}
	res, ok := r.resolvers[id]
	return res, ok
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.resolvers))
	for id := range r.resolvers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Origin reports where id was registered from.
func (r *Registry) Origin(id string) string {
	return r.origins[id]
}

// ValidID reports whether id is exactly two ASCII letters.
func ValidID(id string) bool {
	if len(id) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := id[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}
