package strategy

import (
	"sort"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
	"main/pkg/exception"
)

// Status is one attached strategy's externally visible state.
type Status struct {
	ID          string
	Kind        string
	State       State
	PauseReason string
}

type slot struct {
	strategy Strategy
	state    State
	reason   string
}

// Engine holds the live strategies and the reverse position index. All
// attached strategies start PAUSED; resuming is an explicit step so a
// restart can never un-pause anything on its own.
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]*slot
	byLeg      map[string]string
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{
		strategies: make(map[string]*slot),
		byLeg:      make(map[string]string),
	}
}

// Attach registers a strategy in PAUSED state and indexes its legs.
func (e *Engine) Attach(s Strategy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.strategies[s.ID()]; ok {
		return errors.Wrapf(exception.ErrDuplicateStrategy, "id: %s", s.ID())
	}

	e.strategies[s.ID()] = &slot{strategy: s, state: StatePaused}
	for _, leg := range s.Legs() {
		e.byLeg[leg] = s.ID()
	}
	logs.Infof("attached strategy %s (%s) with %d legs, paused", s.ID(), s.Kind(), len(s.Legs()))
	return nil
}

// Detach removes a strategy and its leg references.
func (e *Engine) Detach(strategyID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sl, ok := e.strategies[strategyID]
	if !ok {
		return errors.Wrapf(exception.ErrStrategyNotFound, "id: %s", strategyID)
	}

	delete(e.strategies, strategyID)
	for _, leg := range sl.strategy.Legs() {
		if e.byLeg[leg] == strategyID {
			delete(e.byLeg, leg)
		}
	}
	return nil
}

// Pause moves a strategy to PAUSED, recording why. Pausing an already
// paused strategy refreshes the reason.
func (e *Engine) Pause(strategyID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sl, ok := e.strategies[strategyID]
	if !ok {
		return errors.Wrapf(exception.ErrStrategyNotFound, "id: %s", strategyID)
	}

	sl.state = StatePaused
	sl.reason = reason
	logs.Warnf("strategy %s paused: %s", strategyID, reason)
	return nil
}

// Resume moves a strategy back to RUNNING and clears the pause reason.
func (e *Engine) Resume(strategyID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sl, ok := e.strategies[strategyID]
	if !ok {
		return errors.Wrapf(exception.ErrStrategyNotFound, "id: %s", strategyID)
	}

	sl.state = StateRunning
	sl.reason = ""
	logs.Infof("strategy %s resumed", strategyID)
	return nil
}

// Get returns an attached strategy.
func (e *Engine) Get(strategyID string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sl, ok := e.strategies[strategyID]
	if !ok {
		return nil, false
	}
	return sl.strategy, true
}

// Status reports one strategy's state.
func (e *Engine) Status(strategyID string) (Status, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sl, ok := e.strategies[strategyID]
	if !ok {
		return Status{}, false
	}
	return Status{
		ID:          strategyID,
		Kind:        sl.strategy.Kind(),
		State:       sl.state,
		PauseReason: sl.reason,
	}, true
}

// List reports every attached strategy, ordered by ID.
func (e *Engine) List() []Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Status, 0, len(e.strategies))
	for id, sl := range e.strategies {
		out = append(out, Status{
			ID:          id,
			Kind:        sl.strategy.Kind(),
			State:       sl.state,
			PauseReason: sl.reason,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Owner returns the strategy ID owning an instrument leg.
func (e *Engine) Owner(instrumentKey string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.byLeg[instrumentKey]
	return id, ok
}

// Reindex rebuilds the leg index from the attached strategies, dropping
// references to anything no longer attached. Returns the index size.
func (e *Engine) Reindex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byLeg = make(map[string]string, len(e.byLeg))
	for id, sl := range e.strategies {
		for _, leg := range sl.strategy.Legs() {
			e.byLeg[leg] = id
		}
	}
	return len(e.byLeg)
}

// SeedIndex records leg ownership straight from cached positions. Used
// when ownership must stay queryable even though the owning strategies
// were not loaded. Returns the index size.
func (e *Engine) SeedIndex(positions []schema.Position) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range positions {
		if p.OwnerStrategyID != "" {
			e.byLeg[p.InstrumentKey] = p.OwnerStrategyID
		}
	}
	return len(e.byLeg)
}
