// Package memstore implements the store backend: an in-process shared
// key-value space. Calls always succeed unless the key is malformed.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/weftwork/weft/service"
)

// procedures is the fixed verb set the store advertises.
var procedures = []string{"get", "set", "delete", "keys"}

// space is the process-wide value store. Backends address it through
// a namespace prefix so distinct services do not collide.
type space struct {
	mu     sync.RWMutex
	values map[string]any
}

var (
	sharedOnce  sync.Once
	sharedSpace *space
)

// shared returns the process-wide store space.
func shared() *space {
	sharedOnce.Do(func() {
		sharedSpace = &space{values: make(map[string]any)}
	})
	return sharedSpace
}

// ResetShared clears the process-wide space. Test isolation only.
func ResetShared() {
	s := shared()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any)
}

// Backend implements service.Backend over the shared space.
type Backend struct {
	name      string
	namespace string
}

// New creates a store backend. cfg.Target is the namespace; it
// defaults to the service name.
func New(name string, cfg service.Config) (service.Backend, error) {
	namespace := cfg.Target
	if namespace == "" {
		namespace = name
	}
	return &Backend{name: name, namespace: namespace}, nil
}

// Kind returns the backend kind.
func (b *Backend) Kind() service.Kind {
	return service.KindStore
}

// Name returns the service name.
func (b *Backend) Name() string {
	return b.name
}

// Procedures returns the fixed verb set.
func (b *Backend) Procedures(_ context.Context) ([]string, error) {
	return append([]string(nil), procedures...), nil
}

// Call executes one store verb.
func (b *Backend) Call(_ context.Context, procedure string, args any) (service.Result, error) {
	fields, _ := args.(map[string]any)

	switch procedure {
	case "get":
		key, ok := b.key(fields)
		if !ok {
			return service.Failure("malformed key"), nil
		}
		s := shared()
		s.mu.RLock()
		value, found := s.values[key]
		s.mu.RUnlock()
		return service.Result{Success: true, Data: map[string]any{"value": value, "found": found}}, nil

	case "set":
		key, ok := b.key(fields)
		if !ok {
			return service.Failure("malformed key"), nil
		}
		s := shared()
		s.mu.Lock()
		s.values[key] = fields["value"]
		s.mu.Unlock()
		return service.Result{Success: true}, nil

	case "delete":
		key, ok := b.key(fields)
		if !ok {
			return service.Failure("malformed key"), nil
		}
		s := shared()
		s.mu.Lock()
		delete(s.values, key)
		s.mu.Unlock()
		return service.Result{Success: true}, nil

	case "keys":
		prefix, _ := fields["prefix"].(string)
		full := b.namespace + "/"
		s := shared()
		s.mu.RLock()
		var keys []string
		for key := range s.values {
			if strings.HasPrefix(key, full) {
				short := strings.TrimPrefix(key, full)
				if strings.HasPrefix(short, prefix) {
					keys = append(keys, short)
				}
			}
		}
		s.mu.RUnlock()
		sort.Strings(keys)
		return service.Result{Success: true, Data: map[string]any{"keys": keys}}, nil

	default:
		return service.Failure("procedure %q not supported by store backend", procedure), nil
	}
}

// Close is a no-op; the shared space outlives any one backend.
func (b *Backend) Close() error {
	return nil
}

// key validates and namespaces the key argument.
func (b *Backend) key(fields map[string]any) (string, bool) {
	raw, _ := fields["key"].(string)
	if !validKey(raw) {
		return "", false
	}
	return b.namespace + "/" + raw, true
}

// validKey rejects empty keys and keys carrying whitespace or control
// characters.
func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}
