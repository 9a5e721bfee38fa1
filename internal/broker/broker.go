package broker

import (
	"context"
	"errors"
	"net"

	"main/internal/schema"
	"main/pkg/exception"
)

// Profile describes the authenticated broker account.
type Profile struct {
	OwnerID   string
	OwnerName string
}

// Grant is the outcome of a credential exchange.
type Grant struct {
	Token     string
	OwnerID   string
	OwnerName string
}

// API is the broker surface the engine depends on. Implementations hold
// the active token; SetAccessToken swaps it in after a credential exchange.
type API interface {
	Name() string
	ExchangeCredentials(ctx context.Context) (Grant, error)
	SetAccessToken(token string)
	Profile(ctx context.Context) (Profile, error)
	Positions(ctx context.Context) ([]schema.BrokerPosition, error)
	InvalidateToken(ctx context.Context) error
}

// FailureKind classifies a failed broker call.
type FailureKind uint8

const (
	FailureNone FailureKind = iota
	FailureNetwork
	FailureAuthorization
	FailureMalformed
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "NONE"
	case FailureNetwork:
		return "NETWORK"
	case FailureAuthorization:
		return "AUTHORIZATION"
	case FailureMalformed:
		return "MALFORMED"
	default:
		return "UNKNOWN"
	}
}

// Classify maps a broker call error onto a failure kind. Authorization
// failures demand a fresh token; every other failure counts against
// connectivity.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, exception.ErrBrokerAuthorization) || errors.Is(err, exception.ErrBrokerTokenRevoked) {
		return FailureAuthorization
	}
	if errors.Is(err, exception.ErrBrokerMalformedResponse) {
		return FailureMalformed
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureNetwork
	}
	return FailureNetwork
}
