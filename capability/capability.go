// Package capability holds the external operations effect steps depend on.
//
// A capability is a single-argument, possibly failing operation resolved by key
// from a Provider at the moment a step needs it. Whether the underlying work is
// synchronous or asynchronous is invisible to callers: Invoke blocks the calling
// goroutine until a value or an error is available and honors ctx cancellation.
package capability

import (
	"context"
	"sort"
	"sync"

	"github.com/bcap/stepper/chain"
)

type Capability interface {
	Invoke(ctx context.Context, arg any) (any, error)
}

// Func adapts a plain function to the Capability interface
type Func func(ctx context.Context, arg any) (any, error)

func (f Func) Invoke(ctx context.Context, arg any) (any, error) {
	return f(ctx, arg)
}

// Provider resolves capabilities by key
type Provider interface {
	Resolve(key string) (Capability, error)
}

// Registry is a Provider backed by a map. It is safe for concurrent use
type Registry struct {
	mutex        sync.RWMutex
	capabilities map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{capabilities: map[string]Capability{}}
}

// Register binds key to c, replacing any previous binding
func (r *Registry) Register(key string, c Capability) *Registry {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.capabilities == nil {
		r.capabilities = map[string]Capability{}
	}
	r.capabilities[key] = c
	return r
}

func (r *Registry) RegisterFunc(key string, f func(ctx context.Context, arg any) (any, error)) *Registry {
	return r.Register(key, Func(f))
}

// Resolve returns the capability bound to key. Missing capabilities are reported
// as a *chain.ConfigError wrapping chain.ErrCapabilityNotFound
func (r *Registry) Resolve(key string) (Capability, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	c, ok := r.capabilities[key]
	if !ok {
		return nil, chain.CapabilityNotFound("", key)
	}
	return c, nil
}

func (r *Registry) Keys() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	keys := make([]string, 0, len(r.capabilities))
	for key := range r.capabilities {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
