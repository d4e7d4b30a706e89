package policy

import (
	"context"
	"strings"
	"sync"
)

// GeoResolver maps an identity to an ISO 3166-1 alpha-2 country code. An
// empty code means unknown; unknown identities are never geo-rejected.
type GeoResolver interface {
	Country(ctx context.Context, identity string) (string, error)
}

// PrefixGeoResolver resolves countries from a static identity-prefix table.
// It stands in for a real geo database in deployments that only need to
// fence off a handful of known ranges.
type PrefixGeoResolver struct {
	mu       sync.RWMutex
	prefixes map[string]string
}

// NewPrefixGeoResolver creates a resolver over a prefix to country-code
// table.
func NewPrefixGeoResolver(prefixes map[string]string) *PrefixGeoResolver {
	table := make(map[string]string, len(prefixes))
	for prefix, country := range prefixes {
		table[prefix] = strings.ToUpper(country)
	}
	return &PrefixGeoResolver{prefixes: table}
}

// Country returns the country for the longest prefix covering identity, or
// "" when no prefix matches.
func (r *PrefixGeoResolver) Country(ctx context.Context, identity string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		bestLen int
		best    string
	)
	for prefix, country := range r.prefixes {
		if strings.HasPrefix(identity, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = country
		}
	}
	return best, nil
}
