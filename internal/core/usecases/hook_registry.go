package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/core/ports"
)

// HookNameGenerateRandomData is the name scripts use to reference GenerateRandomData.
const HookNameGenerateRandomData = "generateRandomData"

// HookRegistry maps hook names used in scripts to their implementations.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[string]ports.Hook
}

// NewHookRegistry creates an empty HookRegistry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[string]ports.Hook)}
}

// DefaultHooks returns a registry holding the built-in hooks.
func DefaultHooks(rng ports.RandomSource) *HookRegistry {
	r := NewHookRegistry()
	_ = r.Register(HookNameGenerateRandomData, NewRandomDataHook(rng).GenerateRandomData)
	return r
}

// Register adds a hook under name. Names must be unique.
func (r *HookRegistry) Register(name string, hook ports.Hook) error {
	if name == "" || hook == nil {
		return fmt.Errorf("register hook: name and hook are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hooks[name]; exists {
		return fmt.Errorf("register hook %q: already registered", name)
	}
	r.hooks[name] = hook
	return nil
}

// Lookup returns the hook registered under name.
func (r *HookRegistry) Lookup(name string) (ports.Hook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hooks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownHook, name)
	}
	return h, nil
}

// Names returns the registered hook names in sorted order.
func (r *HookRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hooks))
	for n := range r.hooks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check verifies every hook referenced by the script is registered.
func (r *HookRegistry) Check(script *domain.Script) error {
	for _, name := range script.HookNames() {
		if _, err := r.Lookup(name); err != nil {
			return err
		}
	}
	return nil
}

// Run invokes the named hooks in order, waiting for each to call done before
// starting the next. It stops at the first hook that reports an error.
func (r *HookRegistry) Run(ctx context.Context, names []string, vu *domain.SessionContext, events ports.EventEmitter) error {
	for _, name := range names {
		hook, err := r.Lookup(name)
		if err != nil {
			return err
		}
		if err := invoke(ctx, name, hook, vu, events); err != nil {
			return &HookError{Hook: name, Err: err}
		}
	}
	return nil
}

// HookError reports a hook that completed with an error.
type HookError struct {
	Hook string
	Err  error
}

func (e *HookError) Error() string { return "hook " + e.Hook + ": " + e.Err.Error() }

func (e *HookError) Unwrap() error { return e.Err }

// invoke calls hook and waits for its completion signal. Only the first call
// to done counts.
func invoke(ctx context.Context, name string, hook ports.Hook, vu *domain.SessionContext, events ports.EventEmitter) error {
	result := make(chan error, 1)
	var once sync.Once
	done := func(err error) {
		called := false
		once.Do(func() {
			called = true
			result <- err
		})
		if !called {
			slog.Warn("hook signalled completion more than once", "hook", name, "vu_id", vu.VUID)
		}
	}

	hook(vu, events, done)

	// A hook that already completed wins over a cancelled ctx.
	select {
	case err := <-result:
		return err
	default:
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
