// Package gate provides counting-semaphore gates that bound concurrent
// outbound requests. One shared gate exists per backend type process-wide;
// batch dispatch may create short-lived private gates with their own caps.
package gate

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the per-backend-type concurrency bound used when no
// override is configured.
const DefaultLimit = 10

// Gate bounds the number of concurrent in-flight requests. Exceeding the
// limit suspends the caller until a permit frees up; it never fails except
// on context cancellation.
type Gate struct {
	sem      *semaphore.Weighted
	limit    int64
	inFlight atomic.Int64
}

// New creates a gate with the given permit limit.
func New(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Gate{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: int64(limit),
	}
}

// Acquire obtains one permit, suspending until one is available or ctx is
// done. The returned release function is safe to call exactly once on every
// exit path, including cancellation after acquisition.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	g.inFlight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// InFlight returns the number of currently held permits.
func (g *Gate) InFlight() int64 { return g.inFlight.Load() }

// Limit returns the configured permit limit.
func (g *Gate) Limit() int { return int(g.limit) }

// Registry hands out one shared Gate per backend-type key. All provider
// instances of the same type share the same gate, so the bound holds
// process-wide. State is process-local: a multi-process deployment gets
// independent limits per process.
type Registry struct {
	mu           sync.Mutex
	gates        map[string]*Gate
	limits       map[string]int
	defaultLimit int
	logger       *zap.Logger
}

// NewRegistry creates a gate registry with the given default limit.
func NewRegistry(defaultLimit int, logger *zap.Logger) *Registry {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		gates:        make(map[string]*Gate),
		limits:       make(map[string]int),
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// SetLimit overrides the limit for a backend type. It only affects gates
// not yet created; a live gate keeps its limit for consistency of the
// permits already handed out.
func (r *Registry) SetLimit(key string, limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.gates[key]; exists {
		r.logger.Warn("gate limit override ignored: gate already in use",
			zap.String("backend", key), zap.Int("limit", limit))
		return
	}
	r.limits[key] = limit
}

// For returns the shared gate for a backend type, creating it on first use.
func (r *Registry) For(key string) *Gate {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.gates[key]; ok {
		return g
	}
	limit := r.defaultLimit
	if override, ok := r.limits[key]; ok && override > 0 {
		limit = override
	}
	g := New(limit)
	r.gates[key] = g
	r.logger.Debug("concurrency gate created",
		zap.String("backend", key), zap.Int("limit", limit))
	return g
}
