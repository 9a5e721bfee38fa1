package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/broker"
	"main/internal/schema"
	"main/pkg/exception"
)

type riskRecorder struct {
	mu     sync.Mutex
	pauses []string
}

func (r *riskRecorder) PauseAutomation(reason string) {
	r.mu.Lock()
	r.pauses = append(r.pauses, reason)
	r.mu.Unlock()
}

func (r *riskRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pauses)
}

func newExpiryFixture(cfg AuthConfig) (*Expiry, *Auth, *riskRecorder, *Health, *broker.Sim) {
	auth, sim, _, _, health, _ := newAuthFixture(cfg)
	risk := &riskRecorder{}
	expiry := NewExpiry(ExpiryConfig{WarningWindow: 30 * time.Minute, ActionWindow: 5 * time.Minute}, auth, health, risk)
	return expiry, auth, risk, health, sim
}

func TestStagedExpiryFlags(t *testing.T) {
	expiry, _, risk, health, _ := newExpiryFixture(AuthConfig{AutoLogin: true})
	health.OnSessionCreated()

	expiresAt := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)

	// 31 minutes out: nothing fires.
	expiry.evaluate(expiresAt.Add(-31*time.Minute), expiresAt)
	warning, action := expiry.Flags()
	assert.False(t, warning)
	assert.False(t, action)
	assert.Equal(t, schema.SessionConnected, health.State())

	// 30 minutes out: the warning fires once.
	expiry.evaluate(expiresAt.Add(-30*time.Minute), expiresAt)
	warning, action = expiry.Flags()
	assert.True(t, warning)
	assert.False(t, action)
	assert.Equal(t, schema.SessionExpiryWarning, health.State())
	assert.Equal(t, 0, risk.count())

	// 29 minutes out: no re-fire.
	expiry.evaluate(expiresAt.Add(-29*time.Minute), expiresAt)
	warning, action = expiry.Flags()
	assert.True(t, warning)
	assert.False(t, action)

	// 5 minutes out: the actionable flag pauses risk automation.
	expiry.evaluate(expiresAt.Add(-5*time.Minute), expiresAt)
	warning, action = expiry.Flags()
	assert.True(t, warning)
	assert.True(t, action)
	assert.Equal(t, 1, risk.count())

	// 4 minutes out: still one pause.
	expiry.evaluate(expiresAt.Add(-4*time.Minute), expiresAt)
	assert.Equal(t, 1, risk.count())

	// At the instant: session expires and both flags rearm.
	expiry.evaluate(expiresAt, expiresAt)
	warning, action = expiry.Flags()
	assert.False(t, warning)
	assert.False(t, action)
	assert.Equal(t, schema.SessionExpired, health.State())
}

func TestFlagsRearmWhenFreshSessionExtendsExpiry(t *testing.T) {
	expiry, _, _, health, _ := newExpiryFixture(AuthConfig{AutoLogin: true})
	health.OnSessionCreated()

	expiresAt := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	expiry.evaluate(expiresAt.Add(-10*time.Minute), expiresAt)
	warning, _ := expiry.Flags()
	require.True(t, warning)

	// A re-auth pushed expiry to the next day; stale flags clear.
	nextDay := expiresAt.AddDate(0, 0, 1)
	expiry.evaluate(expiresAt.Add(-9*time.Minute), nextDay)
	warning, action := expiry.Flags()
	assert.False(t, warning)
	assert.False(t, action)
}

func TestOnTokenExceptionReauthenticates(t *testing.T) {
	expiry, auth, _, health, sim := newExpiryFixture(AuthConfig{AutoLogin: true})
	require.NoError(t, auth.EnsureSession(context.Background()))
	require.Equal(t, 1, sim.ExchangeCount())

	err := expiry.OnTokenException(context.Background(), exception.ErrBrokerAuthorization)
	require.NoError(t, err)

	assert.Equal(t, 2, sim.ExchangeCount(), "token exception should drive one fresh exchange")
	assert.Equal(t, schema.SessionConnected, health.State())
	warning, action := expiry.Flags()
	assert.False(t, warning)
	assert.False(t, action)
}

func TestOnTokenExceptionReauthFailure(t *testing.T) {
	expiry, auth, _, health, sim := newExpiryFixture(AuthConfig{AutoLogin: true})
	require.NoError(t, auth.EnsureSession(context.Background()))

	sim.FailExchange(exception.ErrBrokerNetwork)
	err := expiry.OnTokenException(context.Background(), exception.ErrBrokerAuthorization)
	require.Error(t, err)
	assert.Equal(t, schema.SessionExpired, health.State(), "failed re-auth must land in EXPIRED")
}

func TestCheckExpirySkipsInactiveSession(t *testing.T) {
	expiry, _, risk, health, _ := newExpiryFixture(AuthConfig{AutoLogin: true})

	// DISCONNECTED with no record: nothing happens.
	expiry.CheckExpiry(context.Background())
	warning, action := expiry.Flags()
	assert.False(t, warning)
	assert.False(t, action)
	assert.Equal(t, 0, risk.count())
	assert.Equal(t, schema.SessionDisconnected, health.State())
}
