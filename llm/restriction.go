package llm

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// RestrictionPolicy decides which model names may be used per provider.
// Lookups receive both the resolved canonical name and the name the caller
// originally supplied: either may appear on an allow-list. Matching is
// exact-string (case-insensitive), not alias-closure — allow-listing an
// alias does not implicitly admit its canonical name. This asymmetry is
// deliberate: operators allow-list the exact spellings they want exposed.
type RestrictionPolicy interface {
	// IsAllowed reports whether the model may be used. canonical is the
	// provider's authoritative name, requested is the caller's original input.
	IsAllowed(provider ProviderType, canonical, requested string) bool

	// HasRestrictions reports whether any allow-list is configured for the provider.
	HasRestrictions(provider ProviderType) bool
}

// allowListPolicy is the standard RestrictionPolicy backed by per-provider
// allow-lists. An absent or empty list means "everything allowed".
type allowListPolicy struct {
	allowed map[ProviderType]map[string]struct{}
	logger  *zap.Logger
}

// NewAllowListPolicy builds a RestrictionPolicy from per-provider model
// lists (already split from their comma-separated configuration form).
// Entries are normalized to lower case; blanks are dropped.
func NewAllowListPolicy(lists map[ProviderType][]string, logger *zap.Logger) RestrictionPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &allowListPolicy{
		allowed: make(map[ProviderType]map[string]struct{}, len(lists)),
		logger:  logger,
	}
	for provider, names := range lists {
		set := make(map[string]struct{})
		for _, n := range names {
			n = strings.ToLower(strings.TrimSpace(n))
			if n == "" {
				continue
			}
			set[n] = struct{}{}
		}
		if len(set) == 0 {
			continue
		}
		p.allowed[provider] = set

		sorted := make([]string, 0, len(set))
		for n := range set {
			sorted = append(sorted, n)
		}
		sort.Strings(sorted)
		logger.Info("model allow-list active",
			zap.String("provider", provider.String()),
			zap.Strings("models", sorted))
	}
	return p
}

func (p *allowListPolicy) HasRestrictions(provider ProviderType) bool {
	_, ok := p.allowed[provider]
	return ok
}

func (p *allowListPolicy) IsAllowed(provider ProviderType, canonical, requested string) bool {
	set, ok := p.allowed[provider]
	if !ok {
		return true
	}
	if _, hit := set[strings.ToLower(strings.TrimSpace(canonical))]; hit {
		return true
	}
	if requested != "" {
		if _, hit := set[strings.ToLower(strings.TrimSpace(requested))]; hit {
			return true
		}
	}
	return false
}

// PermitAllPolicy returns a RestrictionPolicy with no restrictions.
func PermitAllPolicy() RestrictionPolicy {
	return &allowListPolicy{allowed: map[ProviderType]map[string]struct{}{}, logger: zap.NewNop()}
}
