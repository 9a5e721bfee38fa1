package schema

import (
	"time"
)

// SessionState tracks the lifecycle of the broker session.
type SessionState uint8

const (
	SessionDisconnected SessionState = iota
	SessionAuthenticating
	SessionConnected
	SessionActive
	SessionExpiryWarning
	SessionExpired
)

// String returns the canonical name of the state.
func (s SessionState) String() string {
	switch s {
	case SessionDisconnected:
		return "DISCONNECTED"
	case SessionAuthenticating:
		return "AUTHENTICATING"
	case SessionConnected:
		return "CONNECTED"
	case SessionActive:
		return "ACTIVE"
	case SessionExpiryWarning:
		return "EXPIRY_WARNING"
	case SessionExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// sessionTransitions is the fixed transition table. A state maps to the set
// of states it may move to; anything absent is rejected.
var sessionTransitions = map[SessionState][]SessionState{
	SessionDisconnected:   {SessionAuthenticating, SessionConnected, SessionExpired},
	SessionAuthenticating: {SessionConnected, SessionExpired},
	SessionConnected:      {SessionActive, SessionExpiryWarning, SessionAuthenticating, SessionConnected, SessionExpired},
	SessionActive:         {SessionExpiryWarning, SessionAuthenticating, SessionConnected, SessionExpired},
	SessionExpiryWarning:  {SessionAuthenticating, SessionConnected, SessionExpired},
	SessionExpired:        {SessionAuthenticating, SessionConnected},
}

// CanTransition reports whether the transition table allows from → to.
func (s SessionState) CanTransition(to SessionState) bool {
	for _, next := range sessionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Usable reports whether trading operations may run in this state.
// Matches the guard's definition of an active session.
func (s SessionState) Usable() bool {
	switch s {
	case SessionConnected, SessionActive, SessionExpiryWarning:
		return true
	default:
		return false
	}
}

// DegradationLevel classifies available functionality for the current state.
type DegradationLevel uint8

const (
	DegradationNone DegradationLevel = iota
	DegradationWarning
	DegradationPartial
	DegradationDegraded
)

// String returns the canonical name of the degradation level.
func (d DegradationLevel) String() string {
	switch d {
	case DegradationNone:
		return "NONE"
	case DegradationWarning:
		return "WARNING"
	case DegradationPartial:
		return "PARTIAL"
	default:
		return "DEGRADED"
	}
}

// Degradation maps a session state to its degradation level.
func (s SessionState) Degradation() DegradationLevel {
	switch s {
	case SessionConnected, SessionActive:
		return DegradationNone
	case SessionExpiryWarning:
		return DegradationWarning
	case SessionAuthenticating:
		return DegradationPartial
	default:
		return DegradationDegraded
	}
}

// SessionRecord is the persisted broker session. Exactly one record is
// current at a time; creating a new one replaces the prior.
type SessionRecord struct {
	Token     string    `gorm:"column:token;primaryKey" json:"token"`
	OwnerID   string    `gorm:"column:owner_id;index" json:"ownerId"`
	OwnerName string    `gorm:"column:owner_name" json:"ownerName"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	ExpiresAt time.Time `gorm:"column:expires_at" json:"expiresAt"`
}

// TableName names the sessions table.
func (SessionRecord) TableName() string { return "broker_sessions" }

// Expired reports whether the record is past its expiry at the given instant.
func (r SessionRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// TTL returns the remaining lifetime at the given instant, floored at zero.
func (r SessionRecord) TTL(now time.Time) time.Duration {
	if r.Expired(now) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}
