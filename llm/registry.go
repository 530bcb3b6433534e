package llm

import (
	"sync"

	"go.uber.org/zap"
)

// Registry is the single process-wide authority mapping a user-supplied
// model identifier (canonical or alias, case-insensitive) to exactly one
// provider instance. It is constructed once at process start and passed to
// call sites; there is no hidden package-level instance.
//
// Factories are registered explicitly, never auto-discovered. Provider
// instances are built lazily from environment-derived credentials on first
// use and can be dropped with Reset for deterministic test isolation.
type Registry struct {
	mu        sync.RWMutex
	factories map[ProviderType]ProviderFactory
	instances map[ProviderType]ModelProvider

	restriction  RestrictionPolicy
	availability AvailabilityStore
	logger       *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRestrictionPolicy injects the model allow-list policy used by
// listing operations. Providers receive the same policy through their
// factories so validate/list stay consistent.
func WithRestrictionPolicy(p RestrictionPolicy) RegistryOption {
	return func(r *Registry) { r.restriction = p }
}

// WithAvailabilityStore injects the model-availability cache.
func WithAvailabilityStore(s AvailabilityStore) RegistryOption {
	return func(r *Registry) { r.availability = s }
}

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		factories: make(map[ProviderType]ProviderFactory),
		instances: make(map[ProviderType]ModelProvider),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.restriction == nil {
		r.restriction = PermitAllPolicy()
	}
	if r.availability == nil {
		r.availability = NewMemoryAvailabilityStore()
	}
	return r
}

// RegisterFactory registers the factory for a provider type. Registering
// the same type again replaces the factory and drops any live instance,
// which keeps tests honest about what they run against.
func (r *Registry) RegisterFactory(t ProviderType, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.instances[t]; ok {
		if err := old.Close(); err != nil {
			r.logger.Warn("closing replaced provider instance",
				zap.String("provider", t.String()), zap.Error(err))
		}
		delete(r.instances, t)
	}
	r.factories[t] = factory
	r.logger.Debug("provider factory registered", zap.String("provider", t.String()))
}

// Provider returns the lazily-constructed singleton instance for a type.
func (r *Registry) Provider(t ProviderType) (ModelProvider, error) {
	// fast path
	r.mu.RLock()
	if p, ok := r.instances[t]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	factory, registered := r.factories[t]
	r.mu.RUnlock()

	if !registered {
		return nil, NewModelNotFoundError(t.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// double-check: another caller may have built it meanwhile
	if p, ok := r.instances[t]; ok {
		return p, nil
	}
	p, err := factory()
	if err != nil {
		return nil, err
	}
	r.instances[t] = p
	r.logger.Info("provider initialized", zap.String("provider", t.String()))
	return p, nil
}

// ForceNewProvider discards any live instance for the type and rebuilds it
// from its factory, picking up changed credentials.
func (r *Registry) ForceNewProvider(t ProviderType) (ModelProvider, error) {
	r.mu.Lock()
	if old, ok := r.instances[t]; ok {
		if err := old.Close(); err != nil {
			r.logger.Warn("closing provider for rebuild",
				zap.String("provider", t.String()), zap.Error(err))
		}
		delete(r.instances, t)
	}
	r.mu.Unlock()
	return r.Provider(t)
}

// RegisteredTypes returns the registered provider types in priority order.
func (r *Registry) RegisteredTypes() []ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderType, 0, len(r.factories))
	for _, t := range ProviderPriority {
		if _, ok := r.factories[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// GetProviderForModel resolves a model name to the provider that serves it.
// Providers are asked in the fixed priority order — native APIs before the
// aggregators that accept arbitrary names — and the first whose
// ValidateModelName accepts wins. Alias knowledge is owned entirely by each
// provider; the registry holds no centralized alias table.
func (r *Registry) GetProviderForModel(name string) (ModelProvider, error) {
	for _, t := range r.RegisteredTypes() {
		p, err := r.Provider(t)
		if err != nil {
			r.logger.Warn("provider unavailable during model resolution",
				zap.String("provider", t.String()),
				zap.String("model", name),
				zap.Error(err))
			continue
		}
		if !p.ValidateModelName(name) {
			continue
		}
		r.logIgnoredPath(t, name)
		return p, nil
	}
	return nil, NewModelNotFoundError(name)
}

// logIgnoredPath records when two credential paths could serve the same
// model family. Priority puts the Azure deployment catalog ahead of the
// direct OpenAI key; when both match we note the path that lost. Only
// already-initialized instances are consulted so logging never constructs
// providers as a side effect.
func (r *Registry) logIgnoredPath(winner ProviderType, name string) {
	var loser ProviderType
	switch winner {
	case ProviderAzure:
		loser = ProviderOpenAI
	case ProviderOpenAI:
		loser = ProviderAzure
	default:
		return
	}

	r.mu.RLock()
	other, ok := r.instances[loser]
	r.mu.RUnlock()
	if ok && other.ValidateModelName(name) {
		r.logger.Info("model served by preferred credential path",
			zap.String("model", name),
			zap.String("chosen", winner.String()),
			zap.String("ignored", loser.String()))
	}
}

// GetCapabilitiesForModel resolves a model name to its capabilities.
func (r *Registry) GetCapabilitiesForModel(name string) (ModelCapabilities, error) {
	p, err := r.GetProviderForModel(name)
	if err != nil {
		return ModelCapabilities{}, err
	}
	return p.GetCapabilities(name)
}

// ListAvailableModels returns the capabilities of every model visible under
// the restriction policy, in provider priority order. The filter is applied
// exactly once per base model — a model on which any of its names (canonical
// or alias) is allow-listed is listed once, never inconsistently visible
// under one alias and hidden under another.
func (r *Registry) ListAvailableModels() []ModelCapabilities {
	var out []ModelCapabilities
	for _, t := range r.RegisteredTypes() {
		p, err := r.Provider(t)
		if err != nil {
			r.logger.Warn("provider unavailable during listing",
				zap.String("provider", t.String()), zap.Error(err))
			continue
		}
		for _, m := range p.ListModels() {
			if r.modelVisible(t, m) {
				out = append(out, m)
			}
		}
	}
	return out
}

// modelVisible applies the restriction filter once for a base model,
// considering the canonical name and every alias.
func (r *Registry) modelVisible(t ProviderType, m ModelCapabilities) bool {
	if !r.restriction.HasRestrictions(t) {
		return true
	}
	if r.restriction.IsAllowed(t, m.ModelName, "") {
		return true
	}
	for _, alias := range m.Aliases {
		if r.restriction.IsAllowed(t, m.ModelName, alias) {
			return true
		}
	}
	return false
}

// Availability returns the availability cache shared by this registry.
func (r *Registry) Availability() AvailabilityStore { return r.availability }

// Reset drops all initialized provider instances, closing each one.
// Factories stay registered. Intended for deterministic test isolation and
// operator-driven credential rotation.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, p := range r.instances {
		if err := p.Close(); err != nil {
			r.logger.Warn("closing provider during reset",
				zap.String("provider", t.String()), zap.Error(err))
		}
	}
	r.instances = make(map[ProviderType]ModelProvider)
	r.logger.Debug("registry reset: all provider instances dropped")
}
