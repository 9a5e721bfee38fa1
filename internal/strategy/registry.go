package strategy

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/yanun0323/errors"

	"main/pkg/exception"
)

// Factory rebuilds a strategy of one kind from its persisted config.
type Factory func(raw json.RawMessage) (Strategy, error)

// Registry maps kind discriminators to reconstruction factories, so
// persisted polymorphic configs deserialize without open-ended reflection.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// RegisterDefaults registers every built-in strategy kind.
func RegisterDefaults(r *Registry) {
	_ = r.Register(KindPremiumBasket, DecodePremiumBasket)
}

// Register adds a factory for a kind. Registering a kind twice fails.
func (r *Registry) Register(kind string, f Factory) error {
	if kind == "" || f == nil {
		return errors.New("registry: empty kind or nil factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return errors.Wrapf(exception.ErrDuplicateStrategy, "kind: %s", kind)
	}
	r.factories[kind] = f
	return nil
}

// Reconstruct rebuilds a strategy from its discriminator and raw config.
func (r *Registry) Reconstruct(kind string, raw json.RawMessage) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(exception.ErrUnknownStrategyKind, "kind: %s", kind)
	}

	s, err := f(raw)
	if err != nil {
		return nil, errors.Wrapf(exception.ErrStrategyReconstruct, "kind %s: %s", kind, err)
	}
	return s, nil
}

// Kinds returns the registered discriminators, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
