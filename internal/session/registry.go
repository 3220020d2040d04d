package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound      = errors.New("call not found")
	ErrDuplicateCall = errors.New("call already registered")
)

// Registry is the single source of truth for which calls are active. The
// gateway is the only inserter; removal happens exactly once per call during
// teardown.
type Registry struct {
	mu          sync.RWMutex
	calls       map[string]*Call
	maxCallAge  time.Duration
	onStaleCall func(*Call)
}

// NewRegistry creates a registry. maxCallAge bounds how long a call may live
// before the janitor hands it to the stale hook; zero disables the bound.
func NewRegistry(maxCallAge time.Duration) *Registry {
	return &Registry{
		calls:      make(map[string]*Call),
		maxCallAge: maxCallAge,
	}
}

// SetStaleHook installs the callback the janitor invokes for overaged calls.
func (r *Registry) SetStaleHook(hook func(*Call)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStaleCall = hook
}

func (r *Registry) Insert(call *Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[call.CallSID]; ok {
		return ErrDuplicateCall
	}
	r.calls[call.CallSID] = call
	return nil
}

func (r *Registry) Lookup(callSID string) (*Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	call, ok := r.calls[callSID]
	if !ok {
		return nil, ErrNotFound
	}
	return call, nil
}

// Remove deletes the entry if present. Removing an absent id is a no-op so
// both teardown paths can race safely.
func (r *Registry) Remove(callSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, callSID)
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// Snapshot returns the current calls for drain and diagnostics.
func (r *Registry) Snapshot() []*Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Call, 0, len(r.calls))
	for _, call := range r.calls {
		out = append(out, call)
	}
	return out
}

// StartJanitor periodically hands overaged calls to the stale hook.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.expireStale()
			}
		}
	}()
}

func (r *Registry) expireStale() {
	if r.maxCallAge <= 0 {
		return
	}

	var stale []*Call
	r.mu.Lock()
	hook := r.onStaleCall
	for _, call := range r.calls {
		if call.Age() >= r.maxCallAge {
			stale = append(stale, call)
		}
	}
	r.mu.Unlock()

	if hook == nil {
		return
	}
	for _, call := range stale {
		hook(call)
	}
}
