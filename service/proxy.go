package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/weftwork/weft/cache"
)

// ProxyOptions configures a Proxy.
type ProxyOptions struct {
	// CacheSize bounds the shared result cache.
	// Default: cache.DefaultMaxEntries.
	CacheSize int

	// Logger is an optional logger for proxy events.
	Logger Logger
}

// Proxy resolves (service, procedure, args) triples to configured
// backends, applying caching and rate limits. Backend instances are
// created lazily, at most one per service name, and live until Close —
// independent of any widget's mount/unmount cycle, because multiple
// widgets may share one service.
type Proxy struct {
	opts    ProxyOptions
	results *cache.Cache

	mu        sync.Mutex
	configs   map[string]Config
	factories map[Kind]Factory
	backends  map[string]Backend
	limiters  map[string]*rate.Limiter
	closed    bool
}

// NewProxy creates a proxy over the given service configuration map.
// Factories for the backend kinds in use must be registered before the
// first call.
func NewProxy(configs map[string]Config, opts ProxyOptions) *Proxy {
	cfgs := make(map[string]Config, len(configs))
	for name, cfg := range configs {
		cfgs[name] = cfg
	}
	return &Proxy{
		opts:      opts,
		results:   cache.New(opts.CacheSize),
		configs:   cfgs,
		factories: make(map[Kind]Factory),
		backends:  make(map[string]Backend),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// RegisterFactory registers the constructor for a backend kind.
func (p *Proxy) RegisterFactory(kind Kind, factory Factory) {
	if kind == "" || factory == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factories[kind] = factory
}

// Config returns the configuration for a service name.
func (p *Proxy) Config(service string) (Config, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg, ok := p.configs[service]
	return cfg, ok
}

// CallProcedure routes one procedure invocation. Backend failures come
// back as failure Results, never as errors; the error return is
// reserved for resolution failures (ErrServiceNotConfigured,
// ErrUnknownBackendKind, ErrProxyClosed) and context cancellation.
func (p *Proxy) CallProcedure(ctx context.Context, service, procedure string, args any, opts CallOptions) (Result, error) {
	cfg, ok := p.Config(service)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrServiceNotConfigured, service)
	}

	key := cacheKey(service, procedure, args)
	if cfg.CacheTTL > 0 && !opts.BypassCache {
		if hit, ok := p.results.Get(key); ok {
			result := hit.(Result)
			result.Cached = true
			return result, nil
		}
	}

	backend, err := p.backend(service, cfg)
	if err != nil {
		return Result{}, err
	}

	if limiter := p.limiter(service, cfg); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}

	start := time.Now()
	result, err := backend.Call(ctx, procedure, args)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		p.logf("%s.%s: %v", service, procedure, err)
		return Result{Error: err.Error(), DurationMs: elapsed}, nil
	}
	if result.DurationMs == 0 {
		result.DurationMs = elapsed
	}
	result.Cached = false

	if result.Success && cfg.CacheTTL > 0 {
		p.results.Set(key, result, cfg.CacheTTL)
	}
	return result, nil
}

// BatchCall executes calls grouped by service, concurrently within
// each group. The returned slice matches the input ordering regardless
// of completion order; resolution errors become failure Results.
func (p *Proxy) BatchCall(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))

	// Construct each distinct backend up front so concurrent calls
	// never race to open a second connection.
	for _, call := range calls {
		if cfg, ok := p.Config(call.Service); ok {
			_, _ = p.backend(call.Service, cfg)
		}
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			result, err := p.CallProcedure(ctx, call.Service, call.Procedure, call.Args, CallOptions{BypassCache: call.BypassCache})
			if err != nil {
				result = Failure("%v", err)
			}
			results[i] = result
		}(i, call)
	}
	wg.Wait()
	return results
}

// ListProcedures returns the procedures the service's backend
// advertises, for callers that assemble prompts or dispatch tables.
func (p *Proxy) ListProcedures(ctx context.Context, service string) ([]string, error) {
	cfg, ok := p.Config(service)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotConfigured, service)
	}
	backend, err := p.backend(service, cfg)
	if err != nil {
		return nil, err
	}
	return backend.Procedures(ctx)
}

// PurgeCache drops every cached result.
func (p *Proxy) PurgeCache() {
	p.results.Purge()
}

// Close disposes every constructed backend and empties the cache. The
// proxy is unusable afterwards.
func (p *Proxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	backends := make([]Backend, 0, len(p.backends))
	for _, b := range p.backends {
		backends = append(backends, b)
	}
	p.backends = make(map[string]Backend)
	p.mu.Unlock()

	var firstErr error
	for _, b := range backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.results.Purge()
	return firstErr
}

// backend returns the live Backend for service, constructing it on
// first use. At most one instance exists per service name: the
// registry is re-checked under the lock after construction, and a
// losing duplicate is closed instead of inserted.
func (p *Proxy) backend(service string, cfg Config) (Backend, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrProxyClosed
	}
	if existing, ok := p.backends[service]; ok {
		p.mu.Unlock()
		return existing, nil
	}
	factory, ok := p.factories[cfg.Kind]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q for service %s", ErrUnknownBackendKind, cfg.Kind, service)
	}

	built, err := factory(service, cfg)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.backends[service]; ok {
		p.mu.Unlock()
		_ = built.Close()
		return existing, nil
	}
	if p.closed {
		p.mu.Unlock()
		_ = built.Close()
		return nil, ErrProxyClosed
	}
	p.backends[service] = built
	p.mu.Unlock()

	p.logf("backend %s (%s) connected", service, cfg.Kind)
	return built, nil
}

// limiter returns the rate limiter for service, if one is configured.
func (p *Proxy) limiter(service string, cfg Config) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[service]; ok {
		return l
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	p.limiters[service] = l
	return l
}

func (p *Proxy) logf(format string, args ...any) {
	if p.opts.Logger != nil {
		p.opts.Logger.Logf(format, args...)
	}
}

// cacheKey builds the shared cache key for one invocation. Arguments
// are canonicalized through JSON, which sorts map keys.
func cacheKey(service, procedure string, args any) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", args))
	}
	return service + ":" + procedure + ":" + string(encoded)
}
