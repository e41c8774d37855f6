package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingBackend records calls and serves canned results.
type countingBackend struct {
	name    string
	calls   atomic.Int64
	failOn  string
	callErr error
	closed  atomic.Bool
}

func (b *countingBackend) Kind() Kind   { return "counting" }
func (b *countingBackend) Name() string { return b.name }

func (b *countingBackend) Call(_ context.Context, procedure string, args any) (Result, error) {
	n := b.calls.Add(1)
	if b.callErr != nil {
		return Result{}, b.callErr
	}
	if procedure == b.failOn {
		return Failure("procedure %s refused", procedure), nil
	}
	return Result{Success: true, Data: fmt.Sprintf("%s#%d", procedure, n)}, nil
}

func (b *countingBackend) Procedures(_ context.Context) ([]string, error) {
	return []string{"ping"}, nil
}

func (b *countingBackend) Close() error {
	b.closed.Store(true)
	return nil
}

// newCountingProxy wires a proxy whose "counting" factory hands out the
// given backends by service name.
func newCountingProxy(t *testing.T, configs map[string]Config, backends map[string]*countingBackend) (*Proxy, *atomic.Int64) {
	t.Helper()
	var constructed atomic.Int64
	p := NewProxy(configs, ProxyOptions{})
	p.RegisterFactory("counting", func(name string, _ Config) (Backend, error) {
		constructed.Add(1)
		b, ok := backends[name]
		if !ok {
			return nil, fmt.Errorf("no fixture backend for %s", name)
		}
		return b, nil
	})
	t.Cleanup(func() { p.Close() })
	return p, &constructed
}

func TestCallProcedure_RoutesToBackend(t *testing.T) {
	backend := &countingBackend{name: "svc"}
	p, _ := newCountingProxy(t,
		map[string]Config{"svc": {Kind: "counting"}},
		map[string]*countingBackend{"svc": backend})

	got, err := p.CallProcedure(context.Background(), "svc", "ping", nil, CallOptions{})
	if err != nil {
		t.Fatalf("CallProcedure() error = %v", err)
	}
	if !got.Success || got.Cached {
		t.Errorf("CallProcedure() = %+v, want fresh success", got)
	}
	if backend.calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1", backend.calls.Load())
	}
}

func TestCallProcedure_UnconfiguredService(t *testing.T) {
	p, _ := newCountingProxy(t, nil, nil)

	_, err := p.CallProcedure(context.Background(), "ghost", "ping", nil, CallOptions{})
	if !errors.Is(err, ErrServiceNotConfigured) {
		t.Fatalf("error = %v, want ErrServiceNotConfigured", err)
	}
}

func TestCallProcedure_UnknownKind(t *testing.T) {
	p, _ := newCountingProxy(t,
		map[string]Config{"svc": {Kind: "quantum"}}, nil)

	_, err := p.CallProcedure(context.Background(), "svc", "ping", nil, CallOptions{})
	if !errors.Is(err, ErrUnknownBackendKind) {
		t.Fatalf("error = %v, want ErrUnknownBackendKind", err)
	}
}

func TestCallProcedure_CachesSuccessfulResults(t *testing.T) {
	backend := &countingBackend{name: "svc"}
	p, _ := newCountingProxy(t,
		map[string]Config{"svc": {Kind: "counting", CacheTTL: time.Minute}},
		map[string]*countingBackend{"svc": backend})

	first, err := p.CallProcedure(context.Background(), "svc", "ping", map[string]any{"n": 1}, CallOptions{})
	if err != nil {
		t.Fatalf("CallProcedure() error = %v", err)
	}
	second, err := p.CallProcedure(context.Background(), "svc", "ping", map[string]any{"n": 1}, CallOptions{})
	if err != nil {
		t.Fatalf("CallProcedure() error = %v", err)
	}
	if first.Cached {
		t.Error("first call marked cached")
	}
	if !second.Cached {
		t.Error("second call not served from cache")
	}
	if second.Data != first.Data {
		t.Errorf("cached Data = %v, want %v", second.Data, first.Data)
	}
	if backend.calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1", backend.calls.Load())
	}

	// Different arguments miss the cache.
	if _, err := p.CallProcedure(context.Background(), "svc", "ping", map[string]any{"n": 2}, CallOptions{}); err != nil {
		t.Fatalf("CallProcedure() error = %v", err)
	}
	if backend.calls.Load() != 2 {
		t.Errorf("backend calls = %d, want 2 after distinct args", backend.calls.Load())
	}
}

func TestCallProcedure_BypassCache(t *testing.T) {
	backend := &countingBackend{name: "svc"}
	p, _ := newCountingProxy(t,
		map[string]Config{"svc": {Kind: "counting", CacheTTL: time.Minute}},
		map[string]*countingBackend{"svc": backend})

	ctx := context.Background()
	p.CallProcedure(ctx, "svc", "ping", nil, CallOptions{})
	got, err := p.CallProcedure(ctx, "svc", "ping", nil, CallOptions{BypassCache: true})
	if err != nil {
		t.Fatalf("CallProcedure() error = %v", err)
	}
	if got.Cached {
		t.Error("bypassed call marked cached")
	}
	if backend.calls.Load() != 2 {
		t.Errorf("backend calls = %d, want 2", backend.calls.Load())
	}
}

func TestCallProcedure_FailuresNotCached(t *testing.T) {
	backend := &countingBackend{name: "svc", failOn: "ping"}
	p, _ := newCountingProxy(t,
		map[string]Config{"svc": {Kind: "counting", CacheTTL: time.Minute}},
		map[string]*countingBackend{"svc": backend})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		got, err := p.CallProcedure(ctx, "svc", "ping", nil, CallOptions{})
		if err != nil {
			t.Fatalf("CallProcedure() error = %v", err)
		}
		if got.Success || got.Cached {
			t.Errorf("call %d = %+v, want fresh failure", i, got)
		}
	}
	if backend.calls.Load() != 2 {
		t.Errorf("backend calls = %d, want 2 (failures never cached)", backend.calls.Load())
	}
}

func TestCallProcedure_BackendErrorBecomesFailureResult(t *testing.T) {
	backend := &countingBackend{name: "svc", callErr: errors.New("pipe broke")}
	p, _ := newCountingProxy(t,
		map[string]Config{"svc": {Kind: "counting"}},
		map[string]*countingBackend{"svc": backend})

	got, err := p.CallProcedure(context.Background(), "svc", "ping", nil, CallOptions{})
	if err != nil {
		t.Fatalf("CallProcedure() error = %v, want failure result instead", err)
	}
	if got.Success {
		t.Fatal("CallProcedure() succeeded despite backend error")
	}
	if got.Error == "" {
		t.Error("failure result carries no message")
	}
}

func TestBackend_AtMostOneInstancePerService(t *testing.T) {
	backend := &countingBackend{name: "svc"}
	p, constructed := newCountingProxy(t,
		map[string]Config{"svc": {Kind: "counting"}},
		map[string]*countingBackend{"svc": backend})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.CallProcedure(context.Background(), "svc", "ping", nil, CallOptions{})
		}()
	}
	wg.Wait()

	if got := constructed.Load(); got != 1 {
		t.Errorf("factory invoked %d times, want 1", got)
	}
	if got := backend.calls.Load(); got != 16 {
		t.Errorf("backend calls = %d, want 16", got)
	}
}

func TestBatchCall_PreservesOrder(t *testing.T) {
	a := &countingBackend{name: "a"}
	b := &countingBackend{name: "b", failOn: "bad"}
	p, _ := newCountingProxy(t,
		map[string]Config{
			"a": {Kind: "counting"},
			"b": {Kind: "counting"},
		},
		map[string]*countingBackend{"a": a, "b": b})

	results := p.BatchCall(context.Background(), []Call{
		{Service: "a", Procedure: "one"},
		{Service: "missing", Procedure: "two"},
		{Service: "b", Procedure: "bad"},
		{Service: "b", Procedure: "good"},
	})

	if len(results) != 4 {
		t.Fatalf("BatchCall() returned %d results, want 4", len(results))
	}
	if !results[0].Success {
		t.Errorf("results[0] = %+v, want success", results[0])
	}
	if results[1].Success {
		t.Error("results[1] succeeded for an unconfigured service")
	}
	if results[2].Success {
		t.Error("results[2] succeeded for a refused procedure")
	}
	if !results[3].Success {
		t.Errorf("results[3] = %+v, want success", results[3])
	}
}

func TestListProcedures(t *testing.T) {
	backend := &countingBackend{name: "svc"}
	p, _ := newCountingProxy(t,
		map[string]Config{"svc": {Kind: "counting"}},
		map[string]*countingBackend{"svc": backend})

	got, err := p.ListProcedures(context.Background(), "svc")
	if err != nil {
		t.Fatalf("ListProcedures() error = %v", err)
	}
	if len(got) != 1 || got[0] != "ping" {
		t.Errorf("ListProcedures() = %v, want [ping]", got)
	}
}

func TestClose_DisposesBackendsAndRejectsCalls(t *testing.T) {
	backend := &countingBackend{name: "svc"}
	p, _ := newCountingProxy(t,
		map[string]Config{"svc": {Kind: "counting"}},
		map[string]*countingBackend{"svc": backend})

	if _, err := p.CallProcedure(context.Background(), "svc", "ping", nil, CallOptions{}); err != nil {
		t.Fatalf("CallProcedure() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !backend.closed.Load() {
		t.Error("backend not closed")
	}
	if _, err := p.CallProcedure(context.Background(), "svc", "ping", nil, CallOptions{}); !errors.Is(err, ErrProxyClosed) {
		t.Errorf("error after Close = %v, want ErrProxyClosed", err)
	}
}

func TestPurgeCache(t *testing.T) {
	backend := &countingBackend{name: "svc"}
	p, _ := newCountingProxy(t,
		map[string]Config{"svc": {Kind: "counting", CacheTTL: time.Minute}},
		map[string]*countingBackend{"svc": backend})

	ctx := context.Background()
	p.CallProcedure(ctx, "svc", "ping", nil, CallOptions{})
	p.PurgeCache()
	got, err := p.CallProcedure(ctx, "svc", "ping", nil, CallOptions{})
	if err != nil {
		t.Fatalf("CallProcedure() error = %v", err)
	}
	if got.Cached {
		t.Error("call after purge served from cache")
	}
	if backend.calls.Load() != 2 {
		t.Errorf("backend calls = %d, want 2", backend.calls.Load())
	}
}

func TestRateLimit_SpacesCalls(t *testing.T) {
	backend := &countingBackend{name: "svc"}
	p, _ := newCountingProxy(t,
		map[string]Config{"svc": {Kind: "counting", RateLimit: 50, RateBurst: 1}},
		map[string]*countingBackend{"svc": backend})

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := p.CallProcedure(ctx, "svc", "ping", nil, CallOptions{}); err != nil {
			t.Fatalf("CallProcedure() error = %v", err)
		}
	}
	// Burst 1 at 50/s: the second and third calls wait ~20ms each.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("3 calls took %s, want rate limiting to space them", elapsed)
	}
}
