package session

import (
	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/exception"
)

// Guard is the read-only gate trading operations consult before touching
// the broker.
type Guard struct {
	health *Health
}

// NewGuard creates a guard over the canonical session state.
func NewGuard(health *Health) *Guard {
	return &Guard{health: health}
}

// RequireActiveSession fails when the session cannot back a trading
// operation. The error carries the current state.
func (g *Guard) RequireActiveSession() error {
	state := g.health.State()
	if state.Usable() {
		return nil
	}
	return errors.Wrapf(exception.ErrSessionExpired, "state: %s", state)
}

// DegradationLevel classifies the functionality available right now.
func (g *Guard) DegradationLevel() schema.DegradationLevel {
	return g.health.State().Degradation()
}
