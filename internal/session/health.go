package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/bus"
	"main/internal/obs"
	"main/internal/schema"
)

// HealthConfig controls the periodic identity probe.
type HealthConfig struct {
	FailureThreshold int
	ProbeTimeout     time.Duration
}

// Health owns the canonical session state. Every mutation flows through a
// transition method under one mutex, so observers always see a single
// linearized history.
type Health struct {
	cfg   HealthConfig
	api   broker.API
	queue *bus.Queue

	mu       sync.Mutex
	state    schema.SessionState
	failures int
}

// NewHealth creates the service in DISCONNECTED state.
func NewHealth(cfg HealthConfig, api broker.API, queue *bus.Queue) *Health {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &Health{
		cfg:   cfg,
		api:   api,
		queue: queue,
		state: schema.SessionDisconnected,
	}
}

// State returns the canonical session state.
func (h *Health) State() schema.SessionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// IsSessionActive reports whether trading operations may proceed.
func (h *Health) IsSessionActive() bool {
	return h.State().Usable()
}

// Failures returns the consecutive probe failure count.
func (h *Health) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

// OnSessionCreated moves any state to CONNECTED after a fresh login.
func (h *Health) OnSessionCreated() {
	prev, ok := h.transition(schema.SessionConnected, true)
	if !ok {
		return
	}
	logs.Infof("session created, %s -> %s", prev, schema.SessionConnected)
	h.publish(schema.NewEvent(schema.EventSessionCreated, schema.SessionConnected, "").
		WithField("from", prev.String()))
}

// CheckHealth probes the broker identity endpoint. It only runs while the
// session is usable; three consecutive failures expire the session, any
// success resets the count.
func (h *Health) CheckHealth(ctx context.Context) {
	h.mu.Lock()
	state := h.state
	h.mu.Unlock()
	if !state.Usable() {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	defer cancel()

	if _, err := h.api.Profile(probeCtx); err != nil {
		h.probeFailed(err)
		return
	}
	h.probeSucceeded()
}

func (h *Health) probeSucceeded() {
	h.mu.Lock()
	h.failures = 0
	promoted := h.state == schema.SessionConnected
	if promoted {
		h.state = schema.SessionActive
	}
	h.mu.Unlock()

	obs.SetProbeFailureStreak(0)
	if !promoted {
		return
	}
	logs.Infof("session validated, %s -> %s", schema.SessionConnected, schema.SessionActive)
	obs.SetSessionState(schema.SessionActive)
	h.publish(schema.NewEvent(schema.EventSessionValidated, schema.SessionActive, ""))
}

func (h *Health) probeFailed(err error) {
	h.mu.Lock()
	h.failures++
	failures := h.failures
	h.mu.Unlock()

	obs.IncProbeFailure()
	obs.SetProbeFailureStreak(failures)

	kind := broker.Classify(err)
	if failures < h.cfg.FailureThreshold {
		logs.Warnf("health probe failed (%d/%d), kind: %s, err: %+v",
			failures, h.cfg.FailureThreshold, kind, err)
		return
	}
	h.HandleSessionExpiry(fmt.Sprintf("%d consecutive probe failures, last: %v", failures, err))
}

// OnExpiryWarning marks the session as close to its daily expiry.
func (h *Health) OnExpiryWarning() {
	h.mu.Lock()
	if h.state != schema.SessionActive && h.state != schema.SessionConnected {
		h.mu.Unlock()
		return
	}
	prev := h.state
	h.state = schema.SessionExpiryWarning
	h.mu.Unlock()

	logs.Warnf("session expiry warning, %s -> %s", prev, schema.SessionExpiryWarning)
	obs.SetSessionState(schema.SessionExpiryWarning)
}

// HandleSessionExpiry moves any non-expired state to EXPIRED and emits the
// expiry event once. Calling it while already EXPIRED is a no-op.
func (h *Health) HandleSessionExpiry(reason string) {
	h.mu.Lock()
	if h.state == schema.SessionExpired {
		h.mu.Unlock()
		return
	}
	prev := h.state
	h.state = schema.SessionExpired
	h.mu.Unlock()

	logs.Errorf("session expired, %s -> %s, reason: %s", prev, schema.SessionExpired, reason)
	obs.SetSessionState(schema.SessionExpired)
	h.publish(schema.NewEvent(schema.EventSessionExpired, schema.SessionExpired, reason))
}

// OnSessionInvalidated handles an externally reported authorization failure.
func (h *Health) OnSessionInvalidated(reason string) {
	h.HandleSessionExpiry(reason)
}

// OnReAuthStarted marks a credential exchange in flight. No event fires;
// the outcome decides between reconnect and expiry.
func (h *Health) OnReAuthStarted() {
	h.mu.Lock()
	if h.state == schema.SessionAuthenticating {
		h.mu.Unlock()
		return
	}
	prev := h.state
	h.state = schema.SessionAuthenticating
	h.mu.Unlock()

	logs.Infof("re-authentication started, %s -> %s", prev, schema.SessionAuthenticating)
	obs.SetSessionState(schema.SessionAuthenticating)
}

// OnReAuthCompleted moves to CONNECTED after a successful re-auth and
// announces the reconnect.
func (h *Health) OnReAuthCompleted() {
	prev, ok := h.transition(schema.SessionConnected, true)
	if !ok {
		return
	}
	obs.SetProbeFailureStreak(0)
	logs.Infof("re-authentication completed, %s -> %s", prev, schema.SessionConnected)
	h.publish(schema.NewEvent(schema.EventSessionReconnected, schema.SessionConnected, "").
		WithField("from", prev.String()))
}

func (h *Health) transition(to schema.SessionState, resetFailures bool) (schema.SessionState, bool) {
	h.mu.Lock()
	prev := h.state
	if prev != to && !prev.CanTransition(to) {
		h.mu.Unlock()
		logs.Errorf("rejected session transition %s -> %s", prev, to)
		return prev, false
	}
	h.state = to
	if resetFailures {
		h.failures = 0
	}
	h.mu.Unlock()

	obs.SetSessionState(to)
	return prev, true
}

func (h *Health) publish(e schema.Event) {
	obs.IncSessionEvent(e.Type)
	if err := h.queue.TryPublish(e); err != nil {
		obs.IncQueueDrop()
		logs.Warnf("drop %s event, err: %+v", e.Type, err)
	}
}
