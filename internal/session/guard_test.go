package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
	"main/pkg/exception"
)

func TestRequireActiveSession(t *testing.T) {
	health, _, _ := newHealthFixture(t)
	guard := NewGuard(health)

	err := guard.RequireActiveSession()
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrSessionExpired))
	assert.Contains(t, err.Error(), schema.SessionDisconnected.String())

	health.OnSessionCreated()
	assert.NoError(t, guard.RequireActiveSession())

	health.OnExpiryWarning()
	assert.NoError(t, guard.RequireActiveSession(), "warning state still serves traffic")

	health.HandleSessionExpiry("daily expiry")
	err = guard.RequireActiveSession()
	require.Error(t, err)
	assert.Contains(t, err.Error(), schema.SessionExpired.String())
}

func TestGuardDegradationLevel(t *testing.T) {
	health, _, _ := newHealthFixture(t)
	guard := NewGuard(health)

	assert.Equal(t, schema.DegradationDegraded, guard.DegradationLevel())

	health.OnSessionCreated()
	assert.Equal(t, schema.DegradationNone, guard.DegradationLevel())

	health.OnExpiryWarning()
	assert.Equal(t, schema.DegradationWarning, guard.DegradationLevel())

	health.OnReAuthStarted()
	assert.Equal(t, schema.DegradationPartial, guard.DegradationLevel())

	health.HandleSessionExpiry("gone")
	assert.Equal(t, schema.DegradationDegraded, guard.DegradationLevel())
}
