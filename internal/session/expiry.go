package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"
)

// ExpiryConfig controls the staged countdown windows before the daily
// expiry instant.
type ExpiryConfig struct {
	WarningWindow time.Duration
	ActionWindow  time.Duration
}

// RiskPauser pauses automated risk actions when expiry is imminent.
type RiskPauser interface {
	PauseAutomation(reason string)
}

// Expiry watches the session's remaining lifetime and fires two one-shot
// flags on the way down: a warning at the outer window and a pause of risk
// automation at the inner one. Flags rearm only on expiry or when a fresh
// session pushes the expiry instant out again.
type Expiry struct {
	cfg    ExpiryConfig
	auth   *Auth
	health *Health
	risk   RiskPauser

	mu           sync.Mutex
	warningFired bool
	actionFired  bool
}

// NewExpiry creates the countdown service.
func NewExpiry(cfg ExpiryConfig, auth *Auth, health *Health, risk RiskPauser) *Expiry {
	if cfg.WarningWindow <= 0 {
		cfg.WarningWindow = 30 * time.Minute
	}
	if cfg.ActionWindow <= 0 {
		cfg.ActionWindow = 5 * time.Minute
	}
	return &Expiry{cfg: cfg, auth: auth, health: health, risk: risk}
}

// CheckExpiry evaluates the countdown. It runs on a timer while the
// session is usable.
func (e *Expiry) CheckExpiry(ctx context.Context) {
	if !e.health.IsSessionActive() {
		return
	}
	record := e.auth.Record()
	if record.Token == "" {
		return
	}
	e.evaluate(time.Now(), record.ExpiresAt)
}

func (e *Expiry) evaluate(now, expiresAt time.Time) {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		e.health.HandleSessionExpiry("session reached daily expiry")
		e.ResetFlags()
		return
	}
	if remaining > e.cfg.WarningWindow {
		// A fresh record moved expiry out; stale flags belong to the old
		// session.
		e.ResetFlags()
		return
	}

	e.mu.Lock()
	fireWarning := !e.warningFired
	if fireWarning {
		e.warningFired = true
	}
	fireAction := remaining <= e.cfg.ActionWindow && !e.actionFired
	if fireAction {
		e.actionFired = true
	}
	e.mu.Unlock()

	if fireWarning {
		logs.Warnf("session expires in %s", remaining.Round(time.Second))
		e.health.OnExpiryWarning()
	}
	if fireAction {
		logs.Warnf("session expiry imminent (%s left), pausing risk automation", remaining.Round(time.Second))
		if e.risk != nil {
			e.risk.PauseAutomation("session expiry imminent")
		}
	}
}

// OnTokenException handles an authorization failure reported by a broker
// call. The session is invalidated and re-authentication runs
// synchronously; the session always lands in a defined state, CONNECTED
// on success or EXPIRED on failure.
func (e *Expiry) OnTokenException(ctx context.Context, cause error) error {
	logs.Warnf("token exception, err: %+v", cause)
	e.health.OnSessionInvalidated(fmt.Sprintf("token exception: %v", cause))
	if err := e.auth.Reauthenticate(ctx, "token exception"); err != nil {
		return err
	}
	e.ResetFlags()
	return nil
}

// ResetFlags rearms both one-shot flags.
func (e *Expiry) ResetFlags() {
	e.mu.Lock()
	e.warningFired = false
	e.actionFired = false
	e.mu.Unlock()
}

// Flags reports the warning and action flags, in that order.
func (e *Expiry) Flags() (warning, action bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.warningFired, e.actionFired
}
